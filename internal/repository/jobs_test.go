package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vstream/video-platform-back/internal/domain"
)

func newQueuedJob(id, ownerID string, createdAt time.Time) *domain.SearchJob {
	return &domain.SearchJob{
		ID:        id,
		OwnerID:   ownerID,
		Query:     "query " + id,
		Status:    domain.JobStatusQueued,
		CreatedAt: createdAt,
	}
}

func TestMemoryJobsClaimNextReturnsOldestQueued(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	_ = repo.CreateJob(ctx, newQueuedJob("job-2", "u1", base.Add(time.Minute)))
	_ = repo.CreateJob(ctx, newQueuedJob("job-1", "u1", base))

	claimed, err := repo.ClaimNextJob(ctx, time.Now())
	if err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if claimed == nil || claimed.ID != "job-1" {
		t.Fatalf("expected oldest job claimed, got %+v", claimed)
	}
	if claimed.Status != domain.JobStatusProcessing {
		t.Fatalf("expected processing status, got %s", claimed.Status)
	}
	if claimed.StartedAt == nil {
		t.Fatalf("expected started_at set on claim")
	}
}

func TestMemoryJobsClaimNextEmptyQueue(t *testing.T) {
	repo := NewMemoryJobsRepository()

	claimed, err := repo.ClaimNextJob(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected nil claim on empty queue, got %+v", claimed)
	}
}

func TestMemoryJobsClaimUniquenessUnderConcurrency(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	const jobCount = 50
	for i := 0; i < jobCount; i++ {
		id := fmt.Sprintf("job-%03d", i)
		if err := repo.CreateJob(ctx, newQueuedJob(id, "u1", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("unexpected create error: %v", err)
		}
	}

	const claimers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]int)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := repo.ClaimNextJob(ctx, time.Now())
				if err != nil {
					t.Errorf("unexpected claim error: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobCount {
		t.Fatalf("expected %d distinct claims, got %d", jobCount, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("job %s claimed %d times", id, count)
		}
	}
}

func TestMemoryJobsCompleteRequiresProcessing(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()

	_ = repo.CreateJob(ctx, newQueuedJob("job-1", "u1", time.Now().UTC()))

	err := repo.CompleteJob(ctx, "job-1", nil, time.Now())
	if err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition completing a queued job, got %v", err)
	}

	if _, err := repo.ClaimNextJob(ctx, time.Now()); err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	results := []domain.SearchResult{{VideoID: "v1", RelevanceScore: 0.7}}
	if err := repo.CompleteJob(ctx, "job-1", results, time.Now()); err != nil {
		t.Fatalf("unexpected complete error: %v", err)
	}

	// Terminal states are immutable: neither a duplicate completion nor
	// a late failure may touch the job.
	if err := repo.CompleteJob(ctx, "job-1", nil, time.Now()); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition on duplicate completion, got %v", err)
	}
	if err := repo.FailJob(ctx, "job-1", "late failure", time.Now()); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition failing a completed job, got %v", err)
	}

	job, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completed status preserved, got %s", job.Status)
	}
	if len(job.Results) != 1 || job.Results[0].VideoID != "v1" {
		t.Fatalf("expected results preserved, got %+v", job.Results)
	}
	if job.ErrorDetail != "" {
		t.Fatalf("expected no error detail on completed job, got %q", job.ErrorDetail)
	}
}

func TestMemoryJobsFailRecordsDetail(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()

	_ = repo.CreateJob(ctx, newQueuedJob("job-1", "u1", time.Now().UTC()))
	_, _ = repo.ClaimNextJob(ctx, time.Now())

	if err := repo.FailJob(ctx, "job-1", "scorer blew up", time.Now()); err != nil {
		t.Fatalf("unexpected fail error: %v", err)
	}

	job, _ := repo.GetJob(ctx, "job-1")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected failed status, got %s", job.Status)
	}
	if job.ErrorDetail != "scorer blew up" {
		t.Fatalf("expected error detail recorded, got %q", job.ErrorDetail)
	}
	if job.CompletedAt == nil {
		t.Fatalf("expected completed_at set on failure")
	}
}

func TestMemoryJobsGetUnknownID(t *testing.T) {
	repo := NewMemoryJobsRepository()

	if _, err := repo.GetJob(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.CompleteJob(context.Background(), "missing", nil, time.Now()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound completing unknown job, got %v", err)
	}
}

func TestMemoryJobsListFiltersAndPaginates(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_ = repo.CreateJob(ctx, newQueuedJob(fmt.Sprintf("mine-%d", i), "u1", base.Add(time.Duration(i)*time.Minute)))
	}
	_ = repo.CreateJob(ctx, newQueuedJob("other-1", "u2", base))

	jobs, total, err := repo.ListJobs(ctx, domain.JobListFilter{OwnerID: "u1", Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total 5, got %d", total)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs on first page, got %d", len(jobs))
	}
	if jobs[0].ID != "mine-4" {
		t.Fatalf("expected newest first, got %s", jobs[0].ID)
	}

	jobs, _, err = repo.ListJobs(ctx, domain.JobListFilter{OwnerID: "u1", Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "mine-0" {
		t.Fatalf("expected last page with oldest job, got %+v", jobs)
	}

	from := base.Add(90 * time.Second)
	jobs, total, err = repo.ListJobs(ctx, domain.JobListFilter{OwnerID: "u1", From: &from})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 jobs after from filter, got %d", total)
	}
	for _, job := range jobs {
		if job.CreatedAt.Before(from) {
			t.Fatalf("job %s violates from filter", job.ID)
		}
	}
}

func TestMemoryJobsCountByStatus(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = repo.CreateJob(ctx, newQueuedJob(fmt.Sprintf("job-%d", i), "u1", time.Now().UTC()))
	}
	_, _ = repo.ClaimNextJob(ctx, time.Now())

	queued, err := repo.CountJobsByStatus(ctx, domain.JobStatusQueued)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if queued != 2 {
		t.Fatalf("expected 2 queued, got %d", queued)
	}

	processing, _ := repo.CountJobsByStatus(ctx, domain.JobStatusProcessing)
	if processing != 1 {
		t.Fatalf("expected 1 processing, got %d", processing)
	}
}

func TestMemoryJobsSnapshotsAreIsolated(t *testing.T) {
	repo := NewMemoryJobsRepository()
	ctx := context.Background()

	_ = repo.CreateJob(ctx, newQueuedJob("job-1", "u1", time.Now().UTC()))
	_, _ = repo.ClaimNextJob(ctx, time.Now())
	_ = repo.CompleteJob(ctx, "job-1", []domain.SearchResult{{VideoID: "v1", RelevanceScore: 0.5}}, time.Now())

	first, _ := repo.GetJob(ctx, "job-1")
	first.Results[0].VideoID = "mutated"
	first.Status = domain.JobStatusQueued

	second, _ := repo.GetJob(ctx, "job-1")
	if second.Results[0].VideoID != "v1" {
		t.Fatalf("expected stored results unaffected by caller mutation")
	}
	if second.Status != domain.JobStatusCompleted {
		t.Fatalf("expected stored status unaffected by caller mutation")
	}
}
