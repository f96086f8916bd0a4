package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/vstream/video-platform-back/internal/domain"
	"github.com/vstream/video-platform-back/internal/queue"
	"github.com/vstream/video-platform-back/internal/repository"
	"github.com/vstream/video-platform-back/internal/search"
	"github.com/vstream/video-platform-back/internal/service"
)

// Processor drains queued search jobs. Each iteration waits for a wake
// event (or the poll interval), then claims and scores jobs until the
// queue is empty. A failing or panicking scorer marks that one job
// failed and the loop keeps going.
type Processor struct {
	jobs   *service.JobsService
	videos repository.VideosRepository
	scorer search.Scorer
	cache  *search.ResultsCache
	waiter queue.Waiter
	logger *log.Logger
}

func NewProcessor(
	jobs *service.JobsService,
	videos repository.VideosRepository,
	scorer search.Scorer,
	cache *search.ResultsCache,
	waiter queue.Waiter,
	logger *log.Logger,
) *Processor {
	if scorer == nil {
		scorer = search.Score
	}
	return &Processor{
		jobs:   jobs,
		videos: videos,
		scorer: scorer,
		cache:  cache,
		waiter: waiter,
		logger: logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, _, err := p.waiter.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if p.logger != nil {
				p.logger.Printf("worker wait error: %v", err)
			}
			continue
		}

		p.drain(ctx)
	}
}

// drain claims until the queue is empty. The wake event that got us
// here is only a hint, so the claimed job may differ from the one in
// the event, and there may be more than one.
func (p *Processor) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.jobs.ClaimNext(ctx)
		if err != nil {
			if p.logger != nil {
				p.logger.Printf("worker claim error: %v", err)
			}
			return
		}
		if job == nil {
			return
		}
		p.processJob(ctx, job)
	}
}

func (p *Processor) processJob(ctx context.Context, job *domain.SearchJob) {
	results, err := p.executeScoring(ctx, job)
	if err != nil {
		if failErr := p.jobs.Fail(ctx, job.ID, err.Error()); failErr != nil && p.logger != nil {
			p.logger.Printf("worker fail transition error job_id=%s err=%v", job.ID, failErr)
		}
		if p.logger != nil {
			p.logger.Printf("job failed job_id=%s err=%v", job.ID, err)
		}
		return
	}

	if err := p.jobs.Complete(ctx, job.ID, results); err != nil {
		if p.logger != nil {
			p.logger.Printf("worker complete transition error job_id=%s err=%v", job.ID, err)
		}
		return
	}
	if p.logger != nil {
		p.logger.Printf("job completed job_id=%s results=%d", job.ID, len(results))
	}
}

// executeScoring turns scorer panics into ordinary errors so one bad
// corpus entry cannot take the worker down.
func (p *Processor) executeScoring(
	ctx context.Context,
	job *domain.SearchJob,
) (results []domain.SearchResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			results = nil
			err = fmt.Errorf("scorer panic: %v", recovered)
		}
	}()

	signature := search.Signature(job.OwnerID, job.Query)
	if p.cache != nil {
		if cached, ok := p.cache.Get(signature); ok {
			return cached, nil
		}
	}

	corpus, err := p.videos.ListVideos(ctx, domain.VideoListFilter{})
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	results, err = p.scorer(job.Query, corpus)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		p.cache.Set(signature, results)
	}
	return results, nil
}
