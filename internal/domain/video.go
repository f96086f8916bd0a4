package domain

import "time"

// Video is a corpus record scored against search queries.
type Video struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Duration    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// VideoListFilter narrows corpus listings.
type VideoListFilter struct {
	Title       string
	MinDuration *int
	MaxDuration *int
}
