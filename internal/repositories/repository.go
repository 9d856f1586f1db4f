// Package repositories persists users and videos in MongoDB or PostgreSQL.
// Both backends satisfy the same contracts and report the same sentinels.
package repositories

import (
	"context"
	"errors"

	"github.com/vidshare/backend/internal/models"
)

var (
	// ErrNotFound indicates no user matches the lookup.
	ErrNotFound = errors.New("repositories: not found")
	// ErrConflict indicates a user with the same email is already stored.
	ErrConflict = errors.New("repositories: email already registered")
)

// UserRepository stores accounts keyed by normalized email.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// VideoRepository stores video metadata. Create validates before writing.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	// List returns every video, newest first.
	List(ctx context.Context) ([]models.Video, error)
}
