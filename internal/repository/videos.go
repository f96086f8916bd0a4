package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vstream/video-platform-back/internal/domain"
)

// VideosRepository abstracts the corpus store. The search worker reads a
// snapshot through ListVideos at claim time; CRUD is served by the video
// service.
type VideosRepository interface {
	CreateVideo(ctx context.Context, video *domain.Video) error
	UpdateVideo(ctx context.Context, video *domain.Video) error
	DeleteVideo(ctx context.Context, videoID string) error
	GetVideo(ctx context.Context, videoID string) (*domain.Video, error)
	ListVideos(ctx context.Context, filter domain.VideoListFilter) ([]*domain.Video, error)
}

// MemoryVideosRepository stores videos in memory for local development.
type MemoryVideosRepository struct {
	mu     sync.RWMutex
	videos map[string]*domain.Video
}

func NewMemoryVideosRepository() *MemoryVideosRepository {
	return &MemoryVideosRepository{
		videos: make(map[string]*domain.Video),
	}
}

func (r *MemoryVideosRepository) CreateVideo(_ context.Context, video *domain.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *video
	r.videos[video.ID] = &clone
	return nil
}

func (r *MemoryVideosRepository) UpdateVideo(_ context.Context, video *domain.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.videos[video.ID]; !ok {
		return ErrNotFound
	}
	clone := *video
	r.videos[video.ID] = &clone
	return nil
}

func (r *MemoryVideosRepository) DeleteVideo(_ context.Context, videoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.videos[videoID]; !ok {
		return ErrNotFound
	}
	delete(r.videos, videoID)
	return nil
}

func (r *MemoryVideosRepository) GetVideo(_ context.Context, videoID string) (*domain.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	video, ok := r.videos[videoID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *video
	return &clone, nil
}

func (r *MemoryVideosRepository) ListVideos(
	_ context.Context,
	filter domain.VideoListFilter,
) ([]*domain.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*domain.Video, 0, len(r.videos))
	titleFilter := strings.ToLower(strings.TrimSpace(filter.Title))
	for _, video := range r.videos {
		if titleFilter != "" && !strings.Contains(strings.ToLower(video.Title), titleFilter) {
			continue
		}
		if filter.MinDuration != nil && video.Duration < *filter.MinDuration {
			continue
		}
		if filter.MaxDuration != nil && video.Duration > *filter.MaxDuration {
			continue
		}
		clone := *video
		items = append(items, &clone)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}
