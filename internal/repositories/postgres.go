package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidshare/backend/internal/models"
)

// PostgresSource hands out the shared pgx pool, dialing it on first use.
type PostgresSource interface {
	Acquire(ctx context.Context) (*pgxpool.Pool, error)
}

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	source PostgresSource
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(source PostgresSource) *PostgresUserRepository {
	return &PostgresUserRepository{source: source}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	pool, err := r.source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	_, err = pool.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
    `, user.ID, user.Email, user.Password, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	pool, err := r.source.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}

	row := pool.QueryRow(ctx, `
        SELECT id, email, password_hash, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)

	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.Password, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}

	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	source PostgresSource
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(source PostgresSource) *PostgresVideoRepository {
	return &PostgresVideoRepository{source: source}
}

// Create stores a new video after re-checking the schema.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	if err := video.Validate(); err != nil {
		return err
	}

	pool, err := r.source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	var quality sql.NullInt64
	if video.Transformation.Quality != nil {
		quality = sql.NullInt64{Int64: int64(*video.Transformation.Quality), Valid: true}
	}

	_, err = pool.Exec(ctx, `
        INSERT INTO videos (id, title, description, video_url, thumbnail_url, controls, height, width, quality, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, video.ID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL, video.Controls,
		video.Transformation.Height, video.Transformation.Width, quality, video.CreatedAt.UTC(), video.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// List returns all videos sorted by creation time, newest first.
func (r *PostgresVideoRepository) List(ctx context.Context) ([]models.Video, error) {
	pool, err := r.source.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	rows, err := pool.Query(ctx, `
        SELECT id, title, description, video_url, thumbnail_url, controls, height, width, quality, created_at, updated_at
        FROM videos
        ORDER BY created_at DESC, id DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	videos := make([]models.Video, 0)
	for rows.Next() {
		var (
			video   models.Video
			quality sql.NullInt64
		)
		if err := rows.Scan(&video.ID, &video.Title, &video.Description, &video.VideoURL, &video.ThumbnailURL, &video.Controls,
			&video.Transformation.Height, &video.Transformation.Width, &quality, &video.CreatedAt, &video.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		if quality.Valid {
			q := int(quality.Int64)
			video.Transformation.Quality = &q
		}
		video.CreatedAt = video.CreatedAt.UTC()
		video.UpdatedAt = video.UpdatedAt.UTC()
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
