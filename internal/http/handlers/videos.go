package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vstream/video-platform-back/internal/domain"
	"github.com/vstream/video-platform-back/internal/http/middleware"
	"github.com/vstream/video-platform-back/internal/repository"
)

// VideoAPI serves the corpus CRUD surface.
type VideoAPI struct {
	videos repository.VideosRepository
}

func NewVideoAPI(videos repository.VideosRepository) *VideoAPI {
	return &VideoAPI{videos: videos}
}

type videoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Duration    int    `json:"duration,omitempty"`
}

// Collection handles /api/videos (list, create).
func (api *VideoAPI) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		api.list(w, r)
	case http.MethodPost:
		api.create(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

// Item handles /api/videos/{id} (get, update, delete).
func (api *VideoAPI) Item(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/videos/"), "/"))
	if videoID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "video id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		api.get(w, r, videoID)
	case http.MethodPut:
		api.update(w, r, videoID)
	case http.MethodDelete:
		api.delete(w, r, videoID)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (api *VideoAPI) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "video-service",
	})
}

func (api *VideoAPI) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseVideoListFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid filter parameters")
		return
	}

	videos, err := api.videos.ListVideos(r.Context(), filter)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list videos")
		return
	}

	items := make([]map[string]any, 0, len(videos))
	for _, video := range videos {
		items = append(items, videoPayload(video))
	}
	writeJSON(w, http.StatusOK, items)
}

func (api *VideoAPI) create(w http.ResponseWriter, r *http.Request) {
	var request videoRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	if strings.TrimSpace(request.Title) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "title is required")
		return
	}

	now := time.Now().UTC()
	video := &domain.Video{
		ID:          uuid.NewString(),
		OwnerID:     middleware.GetPrincipalID(r.Context()),
		Title:       strings.TrimSpace(request.Title),
		Description: request.Description,
		Duration:    request.Duration,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := api.videos.CreateVideo(r.Context(), video); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to create video")
		return
	}
	writeJSON(w, http.StatusCreated, videoPayload(video))
}

func (api *VideoAPI) get(w http.ResponseWriter, r *http.Request, videoID string) {
	video, err := api.videos.GetVideo(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "video not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load video")
		return
	}
	writeJSON(w, http.StatusOK, videoPayload(video))
}

func (api *VideoAPI) update(w http.ResponseWriter, r *http.Request, videoID string) {
	video, err := api.videos.GetVideo(r.Context(), videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "video not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load video")
		return
	}

	var request videoRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	if title := strings.TrimSpace(request.Title); title != "" {
		video.Title = title
	}
	if request.Description != "" {
		video.Description = request.Description
	}
	if request.Duration > 0 {
		video.Duration = request.Duration
	}
	video.UpdatedAt = time.Now().UTC()

	if err := api.videos.UpdateVideo(r.Context(), video); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to update video")
		return
	}
	writeJSON(w, http.StatusOK, videoPayload(video))
}

func (api *VideoAPI) delete(w http.ResponseWriter, r *http.Request, videoID string) {
	if err := api.videos.DeleteVideo(r.Context(), videoID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "video not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to delete video")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "video deleted"})
}

func videoPayload(video *domain.Video) map[string]any {
	return map[string]any{
		"id":          video.ID,
		"title":       video.Title,
		"description": video.Description,
		"duration":    video.Duration,
		"created_at":  video.CreatedAt,
		"updated_at":  video.UpdatedAt,
	}
}

func parseVideoListFilter(r *http.Request) (domain.VideoListFilter, error) {
	query := r.URL.Query()
	filter := domain.VideoListFilter{
		Title: strings.TrimSpace(query.Get("title")),
	}

	if raw := strings.TrimSpace(query.Get("min_duration")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return domain.VideoListFilter{}, errInvalidPayload
		}
		filter.MinDuration = &parsed
	}
	if raw := strings.TrimSpace(query.Get("max_duration")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return domain.VideoListFilter{}, errInvalidPayload
		}
		filter.MaxDuration = &parsed
	}
	return filter, nil
}
