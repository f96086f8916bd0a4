package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vstream/video-platform-back/internal/domain"
)

var (
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidTransition is returned when a status change is attempted
	// from a state that does not permit it, including any attempt to
	// mutate a terminal job.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// JobsRepository abstracts search job persistence. Claim and finish
// operations are atomic conditional transitions: implementations must
// guarantee that a queued job is handed to at most one claimer and that
// terminal jobs never change again.
type JobsRepository interface {
	CreateJob(ctx context.Context, job *domain.SearchJob) error
	GetJob(ctx context.Context, jobID string) (*domain.SearchJob, error)

	// ClaimNextJob transitions the oldest queued job to processing and
	// returns it. Returns (nil, nil) when nothing is queued.
	ClaimNextJob(ctx context.Context, now time.Time) (*domain.SearchJob, error)

	// CompleteJob and FailJob transition a processing job to its terminal
	// state. ErrInvalidTransition when the job is not processing,
	// ErrNotFound when it does not exist.
	CompleteJob(ctx context.Context, jobID string, results []domain.SearchResult, at time.Time) error
	FailJob(ctx context.Context, jobID string, errorDetail string, at time.Time) error

	ListJobs(ctx context.Context, filter domain.JobListFilter) ([]*domain.SearchJob, int, error)
	CountJobsByStatus(ctx context.Context, status domain.JobStatus) (int, error)
}

// MemoryJobsRepository stores jobs in memory for local development and
// tests. All transitions happen under one mutex, which is what makes
// claims race-free.
type MemoryJobsRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.SearchJob
}

func NewMemoryJobsRepository() *MemoryJobsRepository {
	return &MemoryJobsRepository{
		jobs: make(map[string]*domain.SearchJob),
	}
}

func (r *MemoryJobsRepository) CreateJob(_ context.Context, job *domain.SearchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobsRepository) GetJob(_ context.Context, jobID string) (*domain.SearchJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobsRepository) ClaimNextJob(_ context.Context, now time.Time) (*domain.SearchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *domain.SearchJob
	for _, job := range r.jobs {
		if job.Status != domain.JobStatusQueued {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	started := now.UTC()
	oldest.Status = domain.JobStatusProcessing
	oldest.StartedAt = &started
	return cloneJob(oldest), nil
}

func (r *MemoryJobsRepository) CompleteJob(
	_ context.Context,
	jobID string,
	results []domain.SearchResult,
	at time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return ErrInvalidTransition
	}

	completed := at.UTC()
	job.Status = domain.JobStatusCompleted
	job.Results = append([]domain.SearchResult(nil), results...)
	job.ErrorDetail = ""
	job.CompletedAt = &completed
	return nil
}

func (r *MemoryJobsRepository) FailJob(_ context.Context, jobID string, errorDetail string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return ErrInvalidTransition
	}

	completed := at.UTC()
	job.Status = domain.JobStatusFailed
	job.Results = nil
	job.ErrorDetail = errorDetail
	job.CompletedAt = &completed
	return nil
}

func (r *MemoryJobsRepository) ListJobs(
	_ context.Context,
	filter domain.JobListFilter,
) ([]*domain.SearchJob, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	items := make([]*domain.SearchJob, 0)
	for _, job := range r.jobs {
		if filter.OwnerID != "" && job.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.From != nil && job.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && job.CreatedAt.After(*filter.To) {
			continue
		}
		items = append(items, cloneJob(job))
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	total := len(items)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []*domain.SearchJob{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}

func (r *MemoryJobsRepository) CountJobsByStatus(_ context.Context, status domain.JobStatus) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, job := range r.jobs {
		if job.Status == status {
			count++
		}
	}
	return count, nil
}

func cloneJob(job *domain.SearchJob) *domain.SearchJob {
	if job == nil {
		return nil
	}
	clone := *job
	clone.Results = append([]domain.SearchResult(nil), job.Results...)
	if job.StartedAt != nil {
		started := *job.StartedAt
		clone.StartedAt = &started
	}
	if job.CompletedAt != nil {
		completed := *job.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}
