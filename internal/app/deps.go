package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vidshare/backend/internal/auth"
	"github.com/vidshare/backend/internal/config"
	"github.com/vidshare/backend/internal/db"
	"github.com/vidshare/backend/internal/handlers"
	"github.com/vidshare/backend/internal/middleware"
	"github.com/vidshare/backend/internal/repositories"
	"github.com/vidshare/backend/internal/storage"
	"github.com/vidshare/backend/internal/uploads"
)

// stores bundles the repositories of one backend with the lifecycle of its
// shared connection.
type stores struct {
	backend db.Backend
	users   repositories.UserRepository
	videos  repositories.VideoRepository
	ready   func() bool
	connect func(ctx context.Context) error
	close   func(ctx context.Context) error
}

// openStores selects the backend from the connection string. Nothing is dialed
// until the first request or an explicit connect.
func openStores(cfg config.Config) (stores, error) {
	backend, err := db.DetectBackend(cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}

	switch backend {
	case db.BackendMongo:
		dial, err := db.DialMongo(cfg.DatabaseURL, cfg.DatabaseName, repositories.EnsureMongoSchema)
		if err != nil {
			return stores{}, err
		}
		conn := db.NewConnector(dial, db.CloseMongo)
		return stores{
			backend: backend,
			users:   repositories.NewMongoUserRepository(conn),
			videos:  repositories.NewMongoVideoRepository(conn),
			ready:   conn.Ready,
			connect: warmUp(conn),
			close:   conn.Close,
		}, nil
	default:
		dial, err := db.DialPostgres(cfg.DatabaseURL, repositories.EnsurePostgresSchema)
		if err != nil {
			return stores{}, err
		}
		conn := db.NewConnector(dial, db.ClosePostgres)
		return stores{
			backend: backend,
			users:   repositories.NewPostgresUserRepository(conn),
			videos:  repositories.NewPostgresVideoRepository(conn),
			ready:   conn.Ready,
			connect: warmUp(conn),
			close:   conn.Close,
		}, nil
	}
}

// warmUp dials the connector eagerly, running the schema initializer.
func warmUp[T any](conn *db.Connector[T]) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := conn.Acquire(ctx)
		return err
	}
}

// buildHandler wires the repositories, auth, uploads and metrics into the
// full middleware chain served by the HTTP server.
func buildHandler(ctx context.Context, cfg config.Config, st stores, logger *slog.Logger) (http.Handler, error) {
	sessions := auth.NewManager(cfg.Session.Secret, cfg.Session.TTL, cfg.Session.Issuer)
	sessions.CookieSecure = cfg.Session.CookieSecure

	providers, err := newProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}
	authenticator := auth.NewAuthenticator(st.users, sessions, providers...)

	objects, err := newObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(registry)

	deps := handlers.Dependencies{
		Users:                st.users,
		Videos:               st.videos,
		Auth:                 authenticator,
		Sessions:             sessions,
		AuthLimiter:          middleware.NewKeyedLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, cfg.AuthRateBurst),
		CookieSecure:         cfg.Session.CookieSecure,
		Providers:            authenticator.Providers(),
		Uploads:              newCredentialIssuer(cfg, objects),
		UploadRequireSession: cfg.Uploads.RequireSession,
		UploadMaxBytes:       cfg.Uploads.MaxSizeBytes,
		DatabaseReady:        st.ready,
		Metrics:              metrics.Handler(),
	}
	if objects != nil {
		deps.Objects = objects
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	var handler http.Handler = mux
	handler = middleware.AccessControl(sessions)(handler)
	handler = metrics.Instrument(handler)
	handler = middleware.RequestLogger(logger)(handler)

	logger.Info("http handler configured",
		"backend", string(st.backend),
		"providers", deps.Providers,
		"uploads", deps.Uploads != nil,
		"relay", objects != nil,
	)
	return handler, nil
}

// newProviders enables every external identity provider whose client id is set.
func newProviders(ctx context.Context, cfg config.Config) ([]auth.Provider, error) {
	var providers []auth.Provider
	callback := func(name string) string {
		return cfg.PublicBaseURL + "/api/auth/oauth/" + name + "/callback"
	}

	if cfg.OAuth.GitHubClientID != "" {
		providers = append(providers, auth.NewGitHubProvider(cfg.OAuth.GitHubClientID, cfg.OAuth.GitHubClientSecret, callback("github")))
	}
	if cfg.OAuth.OIDCClientID != "" {
		if cfg.OAuth.OIDCIssuer == "" {
			return nil, fmt.Errorf("%w: OIDC_ISSUER is required when OIDC_CLIENT_ID is set", config.ErrConfiguration)
		}
		provider, err := auth.NewOIDCProvider(ctx, cfg.OAuth.OIDCIssuer, cfg.OAuth.OIDCClientID, cfg.OAuth.OIDCClientSecret, callback("oidc"))
		if err != nil {
			return nil, fmt.Errorf("configure oidc provider: %w", err)
		}
		providers = append(providers, provider)
	}
	return providers, nil
}

// newObjectStore returns nil without error when no bucket is configured.
func newObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (*storage.S3Storage, error) {
	objects, err := storage.NewS3Storage(ctx, cfg)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("configure object storage: %w", err)
	}
	return objects, nil
}

// newCredentialIssuer prefers ImageKit keys and falls back to presigned S3 PUTs.
func newCredentialIssuer(cfg config.Config, objects *storage.S3Storage) handlers.CredentialIssuer {
	switch {
	case cfg.ImageKit.PrivateKey != "":
		return uploads.ImageKitIssuer{
			PublicKey:  cfg.ImageKit.PublicKey,
			PrivateKey: cfg.ImageKit.PrivateKey,
			UploadURL:  cfg.ImageKit.UploadEndpoint,
			TTL:        cfg.Uploads.CredentialTTL,
		}
	case objects != nil:
		return uploads.S3Issuer{Store: objects, TTL: cfg.Uploads.CredentialTTL}
	default:
		return nil
	}
}
