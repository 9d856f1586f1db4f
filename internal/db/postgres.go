package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidshare/backend/internal/config"
)

// DialPostgres returns a DialFunc creating a pgx pool for databaseURL and verifying it with a ping.
func DialPostgres(databaseURL string, init InitFunc[*pgxpool.Pool]) (DialFunc[*pgxpool.Pool], error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("%w: database connection string is empty", config.ErrConfiguration)
	}

	return func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if init != nil {
			if err := init(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("initialise postgres: %w", err)
			}
		}

		slog.Default().Info("connected to postgres")
		return pool, nil
	}, nil
}

// ClosePostgres closes the pool.
func ClosePostgres(_ context.Context, pool *pgxpool.Pool) error {
	if pool != nil {
		pool.Close()
	}
	return nil
}
