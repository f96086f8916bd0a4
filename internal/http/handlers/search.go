package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vstream/video-platform-back/internal/domain"
	"github.com/vstream/video-platform-back/internal/http/middleware"
	"github.com/vstream/video-platform-back/internal/service"
)

// SearchAPI exposes the polling contract: submit returns immediately
// with a job id, status reads are side-effect-free, completed and failed
// responses are stable forever.
type SearchAPI struct {
	jobs *service.JobsService
}

func NewSearchAPI(jobs *service.JobsService) *SearchAPI {
	return &SearchAPI{jobs: jobs}
}

type submitSearchRequest struct {
	Query string `json:"query"`
}

func (api *SearchAPI) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request submitSearchRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}

	ownerID := middleware.GetPrincipalID(r.Context())
	job, err := api.jobs.Submit(r.Context(), ownerID, request.Query)
	if err != nil {
		if errors.Is(err, service.ErrEmptyQuery) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "query is required")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to submit search")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// JobRoutes dispatches /api/v1/search/{job_id} and /api/v1/search/jobs.
func (api *SearchAPI) JobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/search/")
	rest = strings.TrimSpace(strings.Trim(rest, "/"))
	if rest == "jobs" {
		api.listJobs(w, r)
		return
	}
	api.jobStatus(w, r, rest)
}

func (api *SearchAPI) jobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	requesterID := middleware.GetPrincipalID(r.Context())
	job, err := api.jobs.Get(r.Context(), jobID, requesterID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			writeError(w, r, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, service.ErrJobAccessDenied):
			writeError(w, r, http.StatusForbidden, "forbidden", "job belongs to another user")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load job")
		}
		return
	}

	writeJSON(w, http.StatusOK, jobPayload(job))
}

func (api *SearchAPI) listJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	filter, err := parseJobListFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid filter parameters")
		return
	}

	ownerID := middleware.GetPrincipalID(r.Context())
	jobs, total, err := api.jobs.List(r.Context(), ownerID, filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list jobs")
		return
	}

	items := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, jobPayload(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  items,
		"total": total,
	})
}

// Health includes the queued depth like the rest of the platform's
// services so dashboards can spot a stalled worker.
func (api *SearchAPI) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	pending, err := api.jobs.QueuedCount(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to read queue depth")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"service":      "search-service",
		"jobs_pending": pending,
	})
}

func jobPayload(job *domain.SearchJob) map[string]any {
	payload := map[string]any{
		"job_id":     job.ID,
		"query":      job.Query,
		"status":     job.Status,
		"created_at": job.CreatedAt,
	}
	if job.StartedAt != nil {
		payload["started_at"] = *job.StartedAt
	}
	if job.CompletedAt != nil {
		payload["completed_at"] = *job.CompletedAt
	}
	if job.Status == domain.JobStatusCompleted {
		payload["results"] = job.Results
	}
	if job.Status == domain.JobStatusFailed {
		payload["error"] = map[string]any{
			"code":    "processing_error",
			"message": job.ErrorDetail,
		}
	}
	return payload
}

func parseJobListFilter(r *http.Request) (domain.JobListFilter, error) {
	query := r.URL.Query()
	filter := domain.JobListFilter{}

	if status := strings.TrimSpace(query.Get("status")); status != "" {
		switch domain.JobStatus(status) {
		case domain.JobStatusQueued, domain.JobStatusProcessing, domain.JobStatusCompleted, domain.JobStatusFailed:
			filter.Status = domain.JobStatus(status)
		default:
			return domain.JobListFilter{}, errInvalidPayload
		}
	}

	var err error
	if filter.Page, err = parsePositiveInt(query.Get("page")); err != nil {
		return domain.JobListFilter{}, err
	}
	if filter.PageSize, err = parsePositiveInt(query.Get("per_page")); err != nil {
		return domain.JobListFilter{}, err
	}
	if filter.From, err = parseOptionalDateTime(query.Get("from")); err != nil {
		return domain.JobListFilter{}, err
	}
	if filter.To, err = parseOptionalDateTime(query.Get("to")); err != nil {
		return domain.JobListFilter{}, err
	}
	return filter, nil
}

func parsePositiveInt(value string) (int, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0, errInvalidPayload
	}
	return parsed, nil
}

func parseOptionalDateTime(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, errInvalidPayload
	}
	return &parsed, nil
}
