package model

import (
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus represents the media readiness of a video.
type ProcessingStatus string

const (
	StatusUploading  ProcessingStatus = "uploading"
	StatusProcessing ProcessingStatus = "processing"
	StatusReady      ProcessingStatus = "ready"
	StatusFailed     ProcessingStatus = "failed"
)

// Valid status transitions:
// uploading -> processing -> ready
//                        \-> failed
var validTransitions = map[ProcessingStatus][]ProcessingStatus{
	StatusUploading:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusReady, StatusFailed},
	StatusReady:      {},
	StatusFailed:     {},
}

func (s ProcessingStatus) IsValid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusReady, StatusFailed:
		return true
	default:
		return false
	}
}

func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no processing job may change the status any more.
func (s ProcessingStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

func (s ProcessingStatus) String() string {
	return string(s)
}

// DefaultThumbnail is the placeholder assigned when no thumbnail exists yet.
const DefaultThumbnail = "default-thumbnail.jpg"

// VideoFile holds the storage references of a video's media.
type VideoFile struct {
	// OriginalPath is the uploaded source location. Only meaningful while processing.
	OriginalPath string
	// ProcessedVariants maps a quality label to a playable reference
	// (a local filename or a remote URL).
	ProcessedVariants map[string]string
	// RemoteID identifies the source in the remote media store, if it was uploaded there.
	RemoteID string
}

// Video represents a video entity in the domain.
type Video struct {
	ID               uuid.UUID
	UploaderID       uuid.UUID
	Title            string
	Thumbnail        string
	ThumbnailRef     string
	// CustomThumbnail marks Thumbnail as user-supplied; jobs never replace it.
	CustomThumbnail  bool
	Duration         float64
	VideoFile        VideoFile
	ProcessingStatus ProcessingStatus
	ProcessingError  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

var (
	ErrEmptyTitle        = errors.New("title cannot be empty")
	ErrInvalidUploaderID = errors.New("uploader ID cannot be nil")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTitleTooLong      = errors.New("title exceeds maximum length of 100 characters")
)

const maxTitleLength = 100

// NewVideo creates a new Video in the processing state with the default thumbnail.
func NewVideo(uploaderID uuid.UUID, title string) (*Video, error) {
	if uploaderID == uuid.Nil {
		return nil, ErrInvalidUploaderID
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if len(title) > maxTitleLength {
		return nil, ErrTitleTooLong
	}

	now := time.Now()
	return &Video{
		ID:               uuid.New(),
		UploaderID:       uploaderID,
		Title:            title,
		Thumbnail:        DefaultThumbnail,
		VideoFile:        VideoFile{ProcessedVariants: map[string]string{}},
		ProcessingStatus: StatusProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// TransitionTo attempts to change the processing status.
// Returns error if the transition is not allowed.
func (v *Video) TransitionTo(next ProcessingStatus) error {
	if !next.IsValid() {
		return ErrInvalidTransition
	}
	if !v.ProcessingStatus.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	v.ProcessingStatus = next
	v.UpdatedAt = time.Now()
	return nil
}

// ResetForReprocess moves a failed video back to processing for an operator
// re-trigger. It is the only backward edge in the lifecycle.
func (v *Video) ResetForReprocess(sourcePath string) error {
	if v.ProcessingStatus != StatusFailed {
		return ErrInvalidTransition
	}
	v.ProcessingStatus = StatusProcessing
	v.ProcessingError = ""
	v.VideoFile.OriginalPath = sourcePath
	v.UpdatedAt = time.Now()
	return nil
}

// HasCustomThumbnail reports whether a user-supplied thumbnail is set.
// A thumbnail generated by an earlier run does not count.
func (v *Video) HasCustomThumbnail() bool {
	return v.CustomThumbnail && v.Thumbnail != "" && v.Thumbnail != DefaultThumbnail
}

// IsReady returns true if the video media is playable.
func (v *Video) IsReady() bool {
	return v.ProcessingStatus == StatusReady
}

// IsFailed returns true if the video processing failed.
func (v *Video) IsFailed() bool {
	return v.ProcessingStatus == StatusFailed
}

// Apply copies every field set in f onto v.
func (v *Video) Apply(f VideoFields) {
	if f.ProcessingStatus != nil {
		v.ProcessingStatus = *f.ProcessingStatus
	}
	if f.ProcessingError != nil {
		v.ProcessingError = *f.ProcessingError
	}
	if f.Duration != nil {
		v.Duration = *f.Duration
	}
	if f.Thumbnail != nil {
		v.Thumbnail = *f.Thumbnail
	}
	if f.ThumbnailRef != nil {
		v.ThumbnailRef = *f.ThumbnailRef
	}
	if f.OriginalPath != nil {
		v.VideoFile.OriginalPath = *f.OriginalPath
	}
	if f.ProcessedVariants != nil {
		v.VideoFile.ProcessedVariants = maps.Clone(f.ProcessedVariants)
	}
	if f.RemoteID != nil {
		v.VideoFile.RemoteID = *f.RemoteID
	}
	v.UpdatedAt = time.Now()
}

// VideoFields is a partial update of the processing-related fields of a video.
// Nil fields are left untouched. ProcessedVariants replaces the whole map when non-nil.
type VideoFields struct {
	ProcessingStatus  *ProcessingStatus
	ProcessingError   *string
	Duration          *float64
	Thumbnail         *string
	ThumbnailRef      *string
	OriginalPath      *string
	ProcessedVariants map[string]string
	RemoteID          *string
}

// IsEmpty reports whether the update carries no field.
func (f VideoFields) IsEmpty() bool {
	return f.ProcessingStatus == nil &&
		f.ProcessingError == nil &&
		f.Duration == nil &&
		f.Thumbnail == nil &&
		f.ThumbnailRef == nil &&
		f.OriginalPath == nil &&
		f.ProcessedVariants == nil &&
		f.RemoteID == nil
}

// ProcessingJob is one unit of ingestion work for an uploaded video.
type ProcessingJob struct {
	VideoID        uuid.UUID `json:"video_id"`
	SourcePath     string    `json:"source_path"`
	UseRemoteStore bool      `json:"use_remote_store"`
}
