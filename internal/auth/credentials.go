// Package auth resolves the inference credential for each request and
// implements the identity provider's OAuth login flow.
//
// Credential resolution is layered: clients still inside their anonymous
// allowance ride the shared bypass token; past the allowance, a personal
// token from the login cookie or a configured default token is required.
package auth

import (
	"net/http"

	"github.com/parthib/anysite/internal/quota"
)

// TokenCookie is the cookie carrying a logged-in user's access token.
const TokenCookie = "hf_token"

const loginRequiredMessage = "Log In to continue using the service"

// Error is an authentication failure surfaced to the client. OpenLogin
// tells the UI to open the login dialog instead of showing a plain error.
type Error struct {
	Message   string
	Status    int
	OpenLogin bool
}

func (e *Error) Error() string {
	return e.Message
}

// Resolver decides which credential a request runs under.
type Resolver struct {
	gate       *quota.Gate
	secret     string
	trustProxy bool

	bypassToken  string
	defaultToken string
}

// NewResolver creates a resolver over gate. secret and trustProxy feed the
// request fingerprint; bypassToken is the shared credential for anonymous
// use and defaultToken the fallback for clients past their allowance.
func NewResolver(gate *quota.Gate, secret string, trustProxy bool, bypassToken, defaultToken string) *Resolver {
	return &Resolver{
		gate:         gate,
		secret:       secret,
		trustProxy:   trustProxy,
		bypassToken:  bypassToken,
		defaultToken: defaultToken,
	}
}

// Token resolves the inference credential for r. A chargeable resolution
// consumes one unit of the anonymous allowance; probes pass false.
func (r *Resolver) Token(req *http.Request, chargeable bool) (string, error) {
	fingerprint := quota.Fingerprint(req, r.secret, r.trustProxy)
	if r.gate.Evaluate(fingerprint, chargeable) {
		return r.bypassToken, nil
	}

	if cookie, err := req.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	if r.defaultToken != "" {
		return r.defaultToken, nil
	}

	return "", &Error{
		Message:   loginRequiredMessage,
		Status:    http.StatusUnauthorized,
		OpenLogin: true,
	}
}

// CanBypass reports whether r is still inside its anonymous allowance.
// The probe never charges the allowance.
func (r *Resolver) CanBypass(req *http.Request) bool {
	fingerprint := quota.Fingerprint(req, r.secret, r.trustProxy)
	return r.gate.Evaluate(fingerprint, false)
}
