package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vidshare/backend/internal/logging"
	"github.com/vidshare/backend/internal/models"
)

// VideoHandler serves video listing and creation.
type VideoHandler struct {
	Videos   VideoStore
	Sessions SessionReader
	NowFunc  func() time.Time
}

// List handles GET /api/videos and GET /api/auth/video. Both return every
// video, newest first.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Videos == nil {
		logging.FromContext(ctx).Error("video store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch videos"})
		return
	}

	videos, err := h.Videos.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list videos failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch videos"})
		return
	}
	if videos == nil {
		videos = []models.Video{}
	}

	respondJSON(ctx, w, http.StatusOK, videos)
}

// Create handles POST /api/auth/video.
func (h VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	session, ok := currentSession(r, h.Sessions)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	if h.Videos == nil {
		logger.Error("video store unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create video"})
		return
	}

	var req createVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid video payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	video, err := models.NewVideo(req.input(), h.now())
	if err != nil {
		respondValidation(w, r, err)
		return
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		if errors.Is(err, models.ErrValidation) {
			respondValidation(w, r, err)
			return
		}
		logger.Error("create video failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create video"})
		return
	}

	logger.Info("video created", "video_id", video.ID, "user_id", session.UserID)
	respondJSON(ctx, w, http.StatusCreated, video)
}

func respondValidation(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		respondJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": strings.Join(verr.Problems, "; ")})
		return
	}
	if errors.Is(err, models.ErrValidation) {
		respondJSON(r.Context(), w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	logging.FromContext(r.Context()).Error("build video failed", "error", err)
	respondJSON(r.Context(), w, http.StatusInternalServerError, map[string]string{"error": "failed to create video"})
}

type createVideoRequest struct {
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	VideoURL       string                 `json:"videoUrl"`
	ThumbnailURL   string                 `json:"thumbnailUrl"`
	Controls       *bool                  `json:"controls"`
	Transformation *transformationRequest `json:"transformation"`
}

type transformationRequest struct {
	Height  *int `json:"height"`
	Width   *int `json:"width"`
	Quality *int `json:"quality"`
}

func (req createVideoRequest) input() models.VideoInput {
	in := models.VideoInput{
		Title:        req.Title,
		Description:  req.Description,
		VideoURL:     req.VideoURL,
		ThumbnailURL: req.ThumbnailURL,
		Controls:     req.Controls,
	}
	if t := req.Transformation; t != nil {
		in.Transformation = &models.TransformationInput{Height: t.Height, Width: t.Width, Quality: t.Quality}
	}
	return in
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
