package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/vidshare/backend/internal/auth"
	"github.com/vidshare/backend/internal/models"
	"github.com/vidshare/backend/internal/uploads"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// VideoStore captures persistence for video metadata.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	List(ctx context.Context) ([]models.Video, error)
}

// Authenticator verifies login attempts and exposes the configured external providers.
type Authenticator interface {
	Authenticate(ctx context.Context, attempt auth.LoginAttempt) (auth.Grant, error)
	Provider(name string) (auth.Provider, bool)
}

// SessionReader extracts the caller's session from a request.
type SessionReader interface {
	FromRequest(r *http.Request) (auth.Session, error)
}

// SessionCookies writes and clears the session cookie.
type SessionCookies interface {
	SessionReader
	SetCookie(w http.ResponseWriter, token string)
	ClearCookie(w http.ResponseWriter)
}

// CredentialIssuer mints direct-upload credentials for the media host.
type CredentialIssuer interface {
	Issue(ctx context.Context, req uploads.Request) (uploads.Credential, error)
}

// ObjectStore persists relayed upload bodies.
type ObjectStore interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

func currentSession(r *http.Request, sessions SessionReader) (auth.Session, bool) {
	if session, ok := auth.SessionFromContext(r.Context()); ok {
		return session, true
	}
	if sessions == nil {
		return auth.Session{}, false
	}
	session, err := sessions.FromRequest(r)
	return session, err == nil
}
