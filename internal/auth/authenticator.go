package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/vidshare/backend/internal/models"
	"github.com/vidshare/backend/internal/repositories"
)

var (
	// ErrMissingCredentials indicates the email or password was empty.
	ErrMissingCredentials = errors.New("email and password are required")
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownProvider indicates no external provider is registered under the name.
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrProviderRejected indicates the external provider refused the assertion.
	ErrProviderRejected = errors.New("identity provider rejected assertion")
)

// LoginAttempt is either Credentials or ProviderAssertion.
type LoginAttempt interface {
	loginAttempt()
}

// Credentials is an email and password login.
type Credentials struct {
	Email    string
	Password string
}

// ProviderAssertion is a login vouched for by an external identity provider.
// Token is whatever the provider hands back to the callback, usually an
// authorization code.
type ProviderAssertion struct {
	Provider string
	Token    string
}

func (Credentials) loginAttempt()       {}
func (ProviderAssertion) loginAttempt() {}

// UserFinder looks up stored accounts by normalized email.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// Grant is a successful authentication: the signed token and its session.
type Grant struct {
	Token   string
	Session Session
}

// Authenticator verifies login attempts and issues sessions.
type Authenticator struct {
	users     UserFinder
	sessions  *Manager
	providers map[string]Provider
}

// NewAuthenticator wires the credential store, session manager and external providers.
func NewAuthenticator(users UserFinder, sessions *Manager, providers ...Provider) *Authenticator {
	if sessions == nil {
		panic("auth: session manager must not be nil")
	}
	registry := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			registry[p.Name()] = p
		}
	}
	return &Authenticator{users: users, sessions: sessions, providers: registry}
}

// Provider returns the external provider registered under name.
func (a *Authenticator) Provider(name string) (Provider, bool) {
	p, ok := a.providers[name]
	return p, ok
}

// Providers lists the registered provider names in sorted order.
func (a *Authenticator) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Authenticate verifies attempt and issues a session for the resulting identity.
func (a *Authenticator) Authenticate(ctx context.Context, attempt LoginAttempt) (Grant, error) {
	var (
		identity Identity
		err      error
	)
	switch at := attempt.(type) {
	case Credentials:
		identity, err = a.checkCredentials(ctx, at)
	case ProviderAssertion:
		identity, err = a.checkAssertion(ctx, at)
	default:
		err = ErrMissingCredentials
	}
	if err != nil {
		return Grant{}, err
	}

	token, session, err := a.sessions.Issue(identity)
	if err != nil {
		return Grant{}, fmt.Errorf("issue session: %w", err)
	}
	return Grant{Token: token, Session: session}, nil
}

func (a *Authenticator) checkCredentials(ctx context.Context, c Credentials) (Identity, error) {
	email := models.NormalizeEmail(c.Email)
	if email == "" || c.Password == "" {
		return Identity{}, ErrMissingCredentials
	}
	if a.users == nil {
		return Identity{}, errors.New("user store unavailable")
	}

	user, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// Burn a comparison so unknown emails cost the same as wrong passwords.
			_ = bcrypt.CompareHashAndPassword(placeholderHash(), []byte(c.Password))
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("find user: %w", err)
	}

	if !user.CheckPassword(c.Password) {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{UserID: user.ID, Email: user.Email}, nil
}

func (a *Authenticator) checkAssertion(ctx context.Context, pa ProviderAssertion) (Identity, error) {
	provider, ok := a.providers[pa.Provider]
	if !ok {
		return Identity{}, ErrUnknownProvider
	}
	if strings.TrimSpace(pa.Token) == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrProviderRejected)
	}

	ext, err := provider.Verify(ctx, pa.Token)
	if err != nil {
		if errors.Is(err, ErrProviderRejected) {
			return Identity{}, err
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrProviderRejected, err)
	}
	if ext.Subject == "" {
		return Identity{}, fmt.Errorf("%w: no subject", ErrProviderRejected)
	}

	return Identity{
		UserID: provider.Name() + ":" + ext.Subject,
		Email:  models.NormalizeEmail(ext.Email),
	}, nil
}

var (
	placeholderOnce sync.Once
	placeholder     []byte
)

func placeholderHash() []byte {
	placeholderOnce.Do(func() {
		placeholder, _ = bcrypt.GenerateFromPassword([]byte("vidshare-placeholder"), bcrypt.DefaultCost)
	})
	return placeholder
}
