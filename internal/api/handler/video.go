package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/domain/repository"
	"github.com/hszk-dev/vidproc/internal/usecase"
)

// Request/Response types

type ReprocessRequest struct {
	SourcePath     string `json:"source_path,omitempty"`
	UseRemoteStore *bool  `json:"use_remote_store,omitempty"`
}

type VideoResponse struct {
	ID               string            `json:"id"`
	UploaderID       string            `json:"uploader_id"`
	Title            string            `json:"title"`
	Thumbnail        string            `json:"thumbnail"`
	Duration         float64           `json:"duration"`
	ProcessingStatus string            `json:"processing_status"`
	ProcessingError  string            `json:"processing_error,omitempty"`
	Variants         map[string]string `json:"variants"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
}

// multipartMemory is the part of a multipart form held in memory; the rest spills to temp files.
const multipartMemory = 32 << 20

var thumbnailExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// VideoHandler handles video-related HTTP requests.
type VideoHandler struct {
	svc            usecase.VideoService
	maxUploadBytes int64
}

// NewVideoHandler creates a new VideoHandler. A maxUploadBytes of zero disables the limit.
func NewVideoHandler(svc usecase.VideoService, maxUploadBytes int64) *VideoHandler {
	return &VideoHandler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// Create handles POST /v1/videos
//
// The body is multipart/form-data with the fields uploader_id and title, the
// file part video and an optional image part thumbnail. The response is sent
// as soon as the job is queued; processing_status is "processing".
func (h *VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes {
			Error(w, http.StatusRequestEntityTooLarge, "upload_too_large", "Upload exceeds the maximum allowed size")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "upload_too_large", "Upload exceeds the maximum allowed size")
			return
		}
		Error(w, http.StatusBadRequest, "invalid_request", "Body must be multipart/form-data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	uploaderID, err := uuid.Parse(r.FormValue("uploader_id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_uploader_id", "Uploader ID must be a valid UUID")
		return
	}

	title := r.FormValue("title")
	if strings.TrimSpace(title) == "" {
		Error(w, http.StatusBadRequest, "invalid_title", "Title is required")
		return
	}

	videoFile, videoHeader, err := r.FormFile("video")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing_video", "Video file is required")
		return
	}
	defer videoFile.Close()

	input := usecase.CreateVideoInput{
		UploaderID: uploaderID,
		Title:      title,
		Video:      videoFile,
		VideoName:  videoHeader.Filename,
	}

	thumbFile, thumbHeader, err := r.FormFile("thumbnail")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		Error(w, http.StatusBadRequest, "invalid_thumbnail", "Thumbnail could not be read")
		return
	default:
		defer thumbFile.Close()
		if !isImage(thumbHeader) {
			Error(w, http.StatusBadRequest, "invalid_thumbnail", "Thumbnail must be a JPEG, PNG or WebP image")
			return
		}
		input.Thumbnail = thumbFile
		input.ThumbnailName = thumbHeader.Filename
	}

	output, err := h.svc.CreateVideo(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusAccepted, toVideoResponse(output.Video))
}

// Reprocess handles POST /v1/videos/{id}/process
func (h *VideoHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	videoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_video_id", "Video ID must be a valid UUID")
		return
	}

	var req ReprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	video, err := h.svc.Reprocess(r.Context(), usecase.ReprocessInput{
		VideoID:        videoID,
		SourcePath:     req.SourcePath,
		UseRemoteStore: req.UseRemoteStore,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusAccepted, toVideoResponse(video))
}

// Get handles GET /v1/videos/{id}
func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	videoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_video_id", "Video ID must be a valid UUID")
		return
	}

	video, err := h.svc.GetVideo(r.Context(), videoID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, toVideoResponse(video))
}

func (h *VideoHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrVideoNotFound):
		Error(w, http.StatusNotFound, "video_not_found", "Video not found")
	case errors.Is(err, model.ErrInvalidUploaderID):
		Error(w, http.StatusBadRequest, "invalid_uploader_id", "Uploader ID cannot be empty")
	case errors.Is(err, model.ErrEmptyTitle):
		Error(w, http.StatusBadRequest, "invalid_title", "Title cannot be empty")
	case errors.Is(err, model.ErrTitleTooLong):
		Error(w, http.StatusBadRequest, "invalid_title", "Title exceeds maximum length")
	case errors.Is(err, usecase.ErrMissingVideoFile):
		Error(w, http.StatusBadRequest, "missing_video", "Video file is required")
	case errors.Is(err, usecase.ErrInvalidSourcePath):
		Error(w, http.StatusBadRequest, "invalid_source_path", "Source path must be inside the uploads directory")
	case errors.Is(err, usecase.ErrSourceMissing):
		Error(w, http.StatusUnprocessableEntity, "source_missing", "Source file not found")
	case errors.Is(err, usecase.ErrVideoAlreadyCompleted):
		Error(w, http.StatusConflict, "video_already_completed", "Video processing has already completed")
	case errors.Is(err, usecase.ErrVideoStatusChanged):
		Error(w, http.StatusConflict, "status_changed", "Video status changed, retry the request")
	case errors.Is(err, repository.ErrJobInFlight):
		Error(w, http.StatusConflict, "job_in_flight", "Video is already being processed")
	case errors.Is(err, repository.ErrQueueFull), errors.Is(err, repository.ErrPoolClosed):
		Error(w, http.StatusServiceUnavailable, "queue_unavailable", "Processing queue cannot accept jobs right now")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func isImage(fh *multipart.FileHeader) bool {
	return thumbnailExtensions[strings.ToLower(filepath.Ext(fh.Filename))]
}

func toVideoResponse(v *model.Video) VideoResponse {
	variants := v.VideoFile.ProcessedVariants
	if variants == nil {
		variants = map[string]string{}
	}
	return VideoResponse{
		ID:               v.ID.String(),
		UploaderID:       v.UploaderID.String(),
		Title:            v.Title,
		Thumbnail:        v.Thumbnail,
		Duration:         v.Duration,
		ProcessingStatus: v.ProcessingStatus.String(),
		ProcessingError:  v.ProcessingError,
		Variants:         variants,
		CreatedAt:        v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        v.UpdatedAt.Format(time.RFC3339),
	}
}
