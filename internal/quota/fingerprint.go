package quota

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Fingerprint derives a stable, non-reversible client identity from request
// metadata. The raw inputs are hashed and then HMAC-tagged with the
// application secret so the stored key cannot be reversed to the client's
// address or headers.
//
// This is a coarse abuse control, not a security boundary: changing any
// header produces a new fingerprint.
func Fingerprint(r *http.Request, secret string, trustProxy bool) string {
	ip := clientAddr(r, trustProxy)
	userAgent := r.Header.Get("User-Agent")
	accept := r.Header.Get("Accept")
	language := r.Header.Get("Accept-Language")
	encoding := r.Header.Get("Accept-Encoding")
	dnt := r.Header.Get("DNT")

	raw := fmt.Sprintf("%s-%s-%s-%s-%s-%s", ip, userAgent, accept, language, encoding, dnt)
	digest := sha256.Sum256([]byte(raw))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(hex.EncodeToString(digest[:])))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// clientAddr extracts the client network address.
//
// When trustProxy is true, X-Forwarded-For (first entry) is preferred, then
// X-Real-IP. Values are validated with net.ParseIP so arbitrary header
// strings cannot be injected into the fingerprint input.
func clientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			raw := xff
			if first, _, ok := strings.Cut(xff, ","); ok {
				raw = first
			}
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				return ip.String()
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
				return ip.String()
			}
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
