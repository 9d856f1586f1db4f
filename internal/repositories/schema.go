package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	schemaMaxRetries  = 3
	schemaBaseBackoff = 100 * time.Millisecond
	schemaMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS videos (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL,
    video_url TEXT NOT NULL,
    thumbnail_url TEXT NOT NULL,
    controls BOOLEAN NOT NULL DEFAULT TRUE,
    height INTEGER NOT NULL DEFAULT 1920,
    width INTEGER NOT NULL DEFAULT 1080,
    quality INTEGER CHECK (quality BETWEEN 1 AND 100),
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS videos_created_at_idx ON videos (created_at DESC);
`

// EnsurePostgresSchema creates the users and videos tables if they are missing.
// Transient serialization and lock errors are retried with exponential backoff.
func EnsurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	var attempt int
	for attempt = 0; attempt < schemaMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * schemaBaseBackoff
			if backoff > schemaMaxBackoff {
				backoff = schemaMaxBackoff
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin schema transaction: %w", err)
		}

		if _, err := tx.Exec(ctx, postgresSchema); err != nil {
			_ = tx.Rollback(ctx)
			if shouldRetrySchema(err) && attempt < schemaMaxRetries-1 {
				slog.Default().Warn("transient error applying schema", "attempt", attempt+1, "error", err)
				continue
			}
			return fmt.Errorf("apply schema: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			if shouldRetrySchema(err) && attempt < schemaMaxRetries-1 {
				slog.Default().Warn("transient error committing schema", "attempt", attempt+1, "error", err)
				continue
			}
			return fmt.Errorf("commit schema: %w", err)
		}

		return nil
	}

	return fmt.Errorf("apply schema: exceeded max retries (%d)", attempt)
}

func shouldRetrySchema(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}
