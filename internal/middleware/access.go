package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/vidshare/backend/internal/auth"
	"github.com/vidshare/backend/internal/logging"
)

// Class is the access category of a request path.
type Class int

const (
	// ClassProtected paths require a valid session.
	ClassProtected Class = iota
	// ClassAsset paths are static or framework assets and bypass access control.
	ClassAsset
	// ClassAuthExempt paths belong to the sign-in flow.
	ClassAuthExempt
	// ClassPublic paths are readable anonymously.
	ClassPublic
)

func (c Class) String() string {
	switch c {
	case ClassAsset:
		return "asset"
	case ClassAuthExempt:
		return "auth_exempt"
	case ClassPublic:
		return "public"
	default:
		return "protected"
	}
}

// LoginPath is where unauthenticated requests for protected pages are sent.
const LoginPath = "/login"

var assetPrefixes = []string{"/static/", "/_next/static", "/_next/image", "/favicon.ico", "/public/"}

// Classify maps a request path to exactly one access class.
func Classify(path string) Class {
	for _, prefix := range assetPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ClassAsset
		}
	}

	switch {
	case hasSegmentPrefix(path, "/api/auth"), path == LoginPath, path == "/register":
		return ClassAuthExempt
	case path == "/", hasSegmentPrefix(path, "/api/videos"), path == "/healthz", path == "/metrics":
		return ClassPublic
	}
	return ClassProtected
}

// hasSegmentPrefix matches prefix itself and anything below it, so /api/authors
// is not mistaken for /api/auth.
func hasSegmentPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// SessionReader extracts a verified session from a request.
type SessionReader interface {
	FromRequest(r *http.Request) (auth.Session, error)
}

// AccessControl lets asset, auth-exempt and public requests through untouched
// and redirects protected requests without a valid session to the login page.
// A valid session, when present, is attached to the request context.
func AccessControl(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := Classify(r.URL.Path)
			if class == ClassAsset {
				next.ServeHTTP(w, r)
				return
			}

			session, err := auth.Session{}, auth.ErrUnauthenticated
			if sessions != nil {
				session, err = sessions.FromRequest(r)
			}
			if err != nil {
				if class == ClassProtected {
					logging.FromContext(r.Context()).Info("redirecting unauthenticated request", slog.String("path", r.URL.Path))
					redirectToLogin(w, r)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := auth.WithSession(r.Context(), session)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(slog.String("user_id", session.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := LoginPath + "?callbackUrl=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
