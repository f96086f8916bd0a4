package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vstream/video-platform-back/internal/domain"
)

type PostgresJobsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJobsRepository(ctx context.Context, databaseURL string) (*PostgresJobsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresJobsRepository{pool: pool}, nil
}

func (r *PostgresJobsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresJobsRepository) CreateJob(ctx context.Context, job *domain.SearchJob) error {
	results, err := encodeResults(job.Results)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO search_jobs (
			id,
			owner_id,
			query,
			status,
			results,
			error_detail,
			created_at,
			started_at,
			completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		job.ID,
		job.OwnerID,
		job.Query,
		string(job.Status),
		results,
		job.ErrorDetail,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) GetJob(ctx context.Context, jobID string) (*domain.SearchJob, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, query, status, results, error_detail, created_at, started_at, completed_at
		FROM search_jobs
		WHERE id = $1
	`, jobID)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// ClaimNextJob picks the oldest queued job with SKIP LOCKED so concurrent
// workers never receive the same row.
func (r *PostgresJobsRepository) ClaimNextJob(ctx context.Context, now time.Time) (*domain.SearchJob, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE search_jobs
		SET status = 'processing', started_at = $1
		WHERE id = (
			SELECT id FROM search_jobs
			WHERE status = 'queued'
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, owner_id, query, status, results, error_detail, created_at, started_at, completed_at
	`, now.UTC())

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (r *PostgresJobsRepository) CompleteJob(
	ctx context.Context,
	jobID string,
	results []domain.SearchResult,
	at time.Time,
) error {
	encoded, err := encodeResults(results)
	if err != nil {
		return err
	}
	command, err := r.pool.Exec(ctx, `
		UPDATE search_jobs
		SET status = 'completed', results = $2, error_detail = '', completed_at = $3
		WHERE id = $1 AND status = 'processing'
	`, jobID, encoded, at.UTC())
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.transitionError(ctx, jobID)
	}
	return nil
}

func (r *PostgresJobsRepository) FailJob(ctx context.Context, jobID string, errorDetail string, at time.Time) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE search_jobs
		SET status = 'failed', results = NULL, error_detail = $2, completed_at = $3
		WHERE id = $1 AND status = 'processing'
	`, jobID, errorDetail, at.UTC())
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return r.transitionError(ctx, jobID)
	}
	return nil
}

// transitionError distinguishes "no such job" from "job not in a
// claimable state" after a conditional update touched zero rows.
func (r *PostgresJobsRepository) transitionError(ctx context.Context, jobID string) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM search_jobs WHERE id = $1)`, jobID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check job existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

func (r *PostgresJobsRepository) ListJobs(
	ctx context.Context,
	filter domain.JobListFilter,
) ([]*domain.SearchJob, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	baseQuery, args := buildJobFilters(filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	listQuery := fmt.Sprintf(
		`SELECT id, owner_id, query, status, results, error_detail, created_at, started_at, completed_at
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		baseQuery,
		len(args)+1,
		len(args)+2,
	)
	listArgs := append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := r.pool.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.SearchJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", rows.Err())
	}
	return jobs, total, nil
}

func (r *PostgresJobsRepository) CountJobsByStatus(ctx context.Context, status domain.JobStatus) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_jobs WHERE status = $1`, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count jobs by status: %w", err)
	}
	return count, nil
}

func buildJobFilters(filter domain.JobListFilter) (string, []any) {
	query := strings.Builder{}
	query.WriteString("FROM search_jobs WHERE 1=1")

	args := make([]any, 0, 4)
	argIndex := 1

	if ownerID := strings.TrimSpace(filter.OwnerID); ownerID != "" {
		query.WriteString(fmt.Sprintf(" AND owner_id = $%d", argIndex))
		args = append(args, ownerID)
		argIndex++
	}
	if filter.Status != "" {
		query.WriteString(fmt.Sprintf(" AND status = $%d", argIndex))
		args = append(args, string(filter.Status))
		argIndex++
	}
	if filter.From != nil {
		query.WriteString(fmt.Sprintf(" AND created_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		query.WriteString(fmt.Sprintf(" AND created_at <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	return query.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.SearchJob, error) {
	var (
		job     domain.SearchJob
		status  string
		results []byte
	)
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Query,
		&status,
		&results,
		&job.ErrorDetail,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	if len(results) > 0 {
		if err := json.Unmarshal(results, &job.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
	}
	return &job, nil
}

func encodeResults(results []domain.SearchResult) ([]byte, error) {
	if results == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return encoded, nil
}
