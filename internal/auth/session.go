package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the HTTP-only cookie carrying the session token.
const CookieName = "vidshare_session"

// DefaultIssuer is stamped into the iss claim when no issuer is configured.
const DefaultIssuer = "vidshare"

// ErrUnauthenticated indicates the request carried no valid session.
var ErrUnauthenticated = errors.New("not authenticated")

// Identity is the authenticated principal a session is issued for.
type Identity struct {
	UserID string
	Email  string
}

// Session is the materialized view of a verified session token.
type Session struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Manager issues and verifies signed session tokens. Tokens are not persisted.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string

	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
	// NowFunc overrides the clock, mainly for tests.
	NowFunc func() time.Time
}

// NewManager constructs a Manager signing tokens with secret that stay valid for ttl.
func NewManager(secret string, ttl time.Duration, issuer string) *Manager {
	if secret == "" {
		panic("auth: session secret must not be empty")
	}
	if ttl <= 0 {
		panic("auth: session ttl must be positive")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Manager{secret: []byte(secret), ttl: ttl, issuer: issuer}
}

// TTL reports how long issued sessions stay valid.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs a token for identity. The user id is embedded at issuance and
// copied onto every Session parsed from the token.
func (m *Manager) Issue(identity Identity) (string, Session, error) {
	if identity.UserID == "" {
		return "", Session{}, errors.New("user id must be provided")
	}

	now := m.now()
	expires := now.Add(m.ttl)
	claims := sessionClaims{
		UID:   identity.UserID,
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", Session{}, fmt.Errorf("sign session token: %w", err)
	}

	return token, Session{
		UserID:    identity.UserID,
		Email:     identity.Email,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// Parse verifies token and returns the session it encodes.
func (m *Manager) Parse(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthenticated
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.UID == "" {
		return Session{}, fmt.Errorf("%w: token has no user id", ErrUnauthenticated)
	}

	return Session{
		UserID:    claims.UID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// FromRequest reads the session cookie, falling back to an Authorization
// bearer token.
func (m *Manager) FromRequest(r *http.Request) (Session, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return m.Parse(cookie.Value)
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return m.Parse(strings.TrimSpace(token))
	}

	return Session{}, ErrUnauthenticated
}

// SetCookie attaches token to the response as the session cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) now() time.Time {
	if m.NowFunc != nil {
		return m.NowFunc()
	}
	return time.Now()
}
