package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vstream/video-platform-back/internal/domain"
	"github.com/vstream/video-platform-back/internal/queue"
	"github.com/vstream/video-platform-back/internal/repository"
)

var (
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAccessDenied is returned when the requester is not the
	// job's owner.
	ErrJobAccessDenied = errors.New("job access denied")

	ErrEmptyQuery = errors.New("query is required")
)

// JobsService is the single writer of job status transitions. Workers
// and handlers never mutate jobs directly; every change goes through
// the atomic repository operations invoked here.
type JobsService struct {
	repo     repository.JobsRepository
	notifier queue.Notifier
	logger   *log.Logger
}

func NewJobsService(repo repository.JobsRepository, notifier queue.Notifier, logger *log.Logger) *JobsService {
	return &JobsService{repo: repo, notifier: notifier, logger: logger}
}

// Submit creates a job in the queued state and publishes a wake event.
// The job is durable before the event goes out, so a failed publish only
// delays pickup until the next worker poll.
func (s *JobsService) Submit(ctx context.Context, ownerID, query string) (*domain.SearchJob, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	job := &domain.SearchJob{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Query:     query,
		Status:    domain.JobStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.notifier != nil {
		event := domain.WakeEvent{
			JobID:       job.ID,
			OwnerID:     ownerID,
			RequestedAt: job.CreatedAt,
		}
		if err := s.notifier.Publish(ctx, event); err != nil && s.logger != nil {
			s.logger.Printf("wake publish failed, job stays queued until poll job_id=%s err=%v", job.ID, err)
		}
	}
	return job, nil
}

// ClaimNext hands the oldest queued job to exactly one caller. Returns
// nil when nothing is queued.
func (s *JobsService) ClaimNext(ctx context.Context) (*domain.SearchJob, error) {
	return s.repo.ClaimNextJob(ctx, time.Now())
}

func (s *JobsService) Complete(ctx context.Context, jobID string, results []domain.SearchResult) error {
	if err := s.repo.CompleteJob(ctx, jobID, results, time.Now()); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

func (s *JobsService) Fail(ctx context.Context, jobID string, errorDetail string) error {
	if err := s.repo.FailJob(ctx, jobID, errorDetail, time.Now()); err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return nil
}

// Get returns a snapshot of the job after checking ownership. A job id
// that exists but belongs to someone else is reported as access denied,
// not as missing, so operators can tell the two apart in logs.
func (s *JobsService) Get(ctx context.Context, jobID, requesterID string) (*domain.SearchJob, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.OwnerID != requesterID {
		return nil, ErrJobAccessDenied
	}
	return job, nil
}

func (s *JobsService) List(
	ctx context.Context,
	ownerID string,
	filter domain.JobListFilter,
) ([]*domain.SearchJob, int, error) {
	filter.OwnerID = ownerID
	return s.repo.ListJobs(ctx, filter)
}

// QueuedCount feeds the health endpoint's jobs_pending field.
func (s *JobsService) QueuedCount(ctx context.Context) (int, error) {
	return s.repo.CountJobsByStatus(ctx, domain.JobStatusQueued)
}
