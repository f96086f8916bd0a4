package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vstream/video-platform-back/internal/domain"
)

type PostgresVideosRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresVideosRepository(ctx context.Context, databaseURL string) (*PostgresVideosRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresVideosRepository{pool: pool}, nil
}

func (r *PostgresVideosRepository) Close() {
	r.pool.Close()
}

func (r *PostgresVideosRepository) CreateVideo(ctx context.Context, video *domain.Video) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO videos (id, owner_id, title, description, duration, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		video.ID,
		video.OwnerID,
		video.Title,
		video.Description,
		video.Duration,
		video.CreatedAt,
		video.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (r *PostgresVideosRepository) UpdateVideo(ctx context.Context, video *domain.Video) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE videos
		SET title = $2, description = $3, duration = $4, updated_at = $5
		WHERE id = $1
	`, video.ID, video.Title, video.Description, video.Duration, video.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresVideosRepository) DeleteVideo(ctx context.Context, videoID string) error {
	command, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, videoID)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresVideosRepository) GetVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	var video domain.Video
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, description, duration, created_at, updated_at
		FROM videos
		WHERE id = $1
	`, videoID).Scan(
		&video.ID,
		&video.OwnerID,
		&video.Title,
		&video.Description,
		&video.Duration,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query video: %w", err)
	}
	return &video, nil
}

func (r *PostgresVideosRepository) ListVideos(
	ctx context.Context,
	filter domain.VideoListFilter,
) ([]*domain.Video, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT id, owner_id, title, description, duration, created_at, updated_at
		FROM videos
		WHERE 1=1`)

	args := make([]any, 0, 3)
	argIndex := 1

	if title := strings.TrimSpace(filter.Title); title != "" {
		query.WriteString(fmt.Sprintf(" AND title ILIKE '%%' || $%d || '%%'", argIndex))
		args = append(args, title)
		argIndex++
	}
	if filter.MinDuration != nil {
		query.WriteString(fmt.Sprintf(" AND duration >= $%d", argIndex))
		args = append(args, *filter.MinDuration)
		argIndex++
	}
	if filter.MaxDuration != nil {
		query.WriteString(fmt.Sprintf(" AND duration <= $%d", argIndex))
		args = append(args, *filter.MaxDuration)
		argIndex++
	}
	query.WriteString(" ORDER BY created_at ASC")

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	videos := make([]*domain.Video, 0)
	for rows.Next() {
		var video domain.Video
		if err := rows.Scan(
			&video.ID,
			&video.OwnerID,
			&video.Title,
			&video.Description,
			&video.Duration,
			&video.CreatedAt,
			&video.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, &video)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate videos: %w", rows.Err())
	}
	return videos, nil
}
