package domain

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SearchResult is one ranked match produced by the scorer.
type SearchResult struct {
	VideoID        string  `json:"video_id"`
	Title          string  `json:"title"`
	RelevanceScore float64 `json:"relevance_score"`
	MatchedText    string  `json:"matched_text"`
}

// SearchJob is the canonical async unit of search work. Status moves
// queued -> processing -> completed|failed and never leaves a terminal
// state.
type SearchJob struct {
	ID          string
	OwnerID     string
	Query       string
	Status      JobStatus
	Results     []SearchResult
	ErrorDetail string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// JobListFilter narrows List queries for one owner.
type JobListFilter struct {
	OwnerID  string
	Status   JobStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// WakeEvent is the message published to queue backends when a job
// becomes claimable. It is a hint only: workers always claim through
// the repository, so a lost or duplicated event is harmless.
type WakeEvent struct {
	JobID       string    `json:"job_id"`
	OwnerID     string    `json:"owner_id"`
	RequestedAt time.Time `json:"requested_at"`
}
