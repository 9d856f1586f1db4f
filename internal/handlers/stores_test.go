package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vidshare/backend/internal/auth"
	"github.com/vidshare/backend/internal/models"
	"github.com/vidshare/backend/internal/repositories"
)

type inMemoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Email]; exists {
		return repositories.ErrConflict
	}
	s.users[user.Email] = user
	return nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

type inMemoryVideoStore struct {
	mu      sync.Mutex
	videos  []models.Video
	listErr error
}

func (s *inMemoryVideoStore) Create(_ context.Context, video models.Video) error {
	if err := video.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos = append(s.videos, video)
	return nil
}

func (s *inMemoryVideoStore) List(context.Context) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := append([]models.Video(nil), s.videos...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *inMemoryVideoStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.videos)
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

func newTestSessions() *auth.Manager {
	return auth.NewManager("handler-test-secret", time.Hour, "")
}

func withSession(r *http.Request, session auth.Session) *http.Request {
	return r.WithContext(auth.WithSession(r.Context(), session))
}
