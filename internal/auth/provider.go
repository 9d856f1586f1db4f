package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"time"
)

// StateCookieName holds the OAuth state between redirect and callback.
const StateCookieName = "vidshare_oauth_state"

const stateTTL = 10 * time.Minute

// ExternalIdentity is what a provider vouches for after verifying an assertion.
type ExternalIdentity struct {
	Subject string
	Email   string
}

// Provider is an external identity provider reachable through an OAuth redirect.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Verify(ctx context.Context, token string) (ExternalIdentity, error)
}

// NewState returns a random opaque OAuth state value.
func NewState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SetStateCookie remembers state for the callback.
func SetStateCookie(w http.ResponseWriter, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/api/auth/oauth",
		MaxAge:   int(stateTTL / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ConsumeState reports whether the callback's state matches the cookie, and
// expires the cookie either way.
func ConsumeState(w http.ResponseWriter, r *http.Request, state string, secure bool) bool {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/api/auth/oauth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})

	cookie, err := r.Cookie(StateCookieName)
	if err != nil || cookie.Value == "" || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) == 1
}
