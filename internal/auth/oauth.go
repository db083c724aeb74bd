package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// tokenCookieMaxAge keeps a login valid for 30 days.
const tokenCookieMaxAge = 30 * 24 * time.Hour

// OAuthConfig carries the identity provider settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RedirectURI  string
}

// OAuth implements the authorization-code login flow against the identity
// provider.
type OAuth struct {
	cfg        OAuthConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOAuth creates the OAuth flow handler.
func NewOAuth(cfg OAuthConfig, logger *slog.Logger) *OAuth {
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuth{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// RedirectToProvider sends the browser to the provider's consent page.
func (o *OAuth) RedirectToProvider(w http.ResponseWriter, r *http.Request) {
	q := url.Values{}
	q.Set("client_id", o.cfg.ClientID)
	q.Set("redirect_uri", o.cfg.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "openid profile inference-api")
	q.Set("prompt", "consent")
	q.Set("state", "1234567890")

	http.Redirect(w, r, o.cfg.AuthorizeURL+"?"+q.Encode(), http.StatusFound)
}

// tokenResponse is the provider's token-exchange reply.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Callback handles the provider redirect: it exchanges the authorization
// code for an access token and stores it in the login cookie. Every failure
// path lands back on the app root; a missing cookie there simply means the
// login did not take.
func (o *OAuth) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	token, err := o.exchange(r, code)
	if err != nil {
		o.logger.Error("oauth code exchange failed", "error", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(tokenCookieMaxAge.Seconds()),
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (o *OAuth) exchange(r *http.Request, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", o.cfg.RedirectURI)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, o.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(o.cfg.ClientID, o.cfg.ClientSecret)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling token endpoint: %w", err)
	}
	defer resp.Body.Close()

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token (status %d)", resp.StatusCode)
	}
	return tok.AccessToken, nil
}
