package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestProcessingStatus_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		status ProcessingStatus
		want   bool
	}{
		{"uploading is valid", StatusUploading, true},
		{"processing is valid", StatusProcessing, true},
		{"ready is valid", StatusReady, true},
		{"failed is valid", StatusFailed, true},
		{"empty string is invalid", ProcessingStatus(""), false},
		{"unknown status is invalid", ProcessingStatus("UNKNOWN"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("ProcessingStatus.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProcessingStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		current ProcessingStatus
		next    ProcessingStatus
		want    bool
	}{
		// Valid transitions
		{"uploading -> processing", StatusUploading, StatusProcessing, true},
		{"uploading -> failed", StatusUploading, StatusFailed, true},
		{"processing -> ready", StatusProcessing, StatusReady, true},
		{"processing -> failed", StatusProcessing, StatusFailed, true},

		// Terminal states
		{"ready -> processing", StatusReady, StatusProcessing, false},
		{"ready -> failed", StatusReady, StatusFailed, false},
		{"failed -> ready", StatusFailed, StatusReady, false},
		{"failed -> processing", StatusFailed, StatusProcessing, false},

		// Skips and self transitions
		{"uploading -> ready", StatusUploading, StatusReady, false},
		{"processing -> processing", StatusProcessing, StatusProcessing, false},
		{"unknown -> processing", ProcessingStatus("x"), StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.current.CanTransitionTo(tt.next); got != tt.want {
				t.Errorf("ProcessingStatus.CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProcessingStatus_IsTerminal(t *testing.T) {
	for status, want := range map[ProcessingStatus]bool{
		StatusUploading:  false,
		StatusProcessing: false,
		StatusReady:      true,
		StatusFailed:     true,
	} {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestNewVideo(t *testing.T) {
	validUploader := uuid.New()

	tests := []struct {
		name       string
		uploaderID uuid.UUID
		title      string
		wantErr    error
	}{
		{
			name:       "valid video creation",
			uploaderID: validUploader,
			title:      "My Video",
		},
		{
			name:       "nil uploader ID",
			uploaderID: uuid.Nil,
			title:      "My Video",
			wantErr:    ErrInvalidUploaderID,
		},
		{
			name:       "empty title",
			uploaderID: validUploader,
			title:      "   ",
			wantErr:    ErrEmptyTitle,
		},
		{
			name:       "title too long",
			uploaderID: validUploader,
			title:      strings.Repeat("a", 101),
			wantErr:    ErrTitleTooLong,
		},
		{
			name:       "title at max length",
			uploaderID: validUploader,
			title:      strings.Repeat("a", 100),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video, err := NewVideo(tt.uploaderID, tt.title)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewVideo() error = %v, wantErr %v", err, tt.wantErr)
				}
				if video != nil {
					t.Error("NewVideo() should return nil video on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewVideo() unexpected error = %v", err)
			}

			if video.ID == uuid.Nil {
				t.Error("NewVideo() should generate non-nil ID")
			}
			if video.ProcessingStatus != StatusProcessing {
				t.Errorf("NewVideo() ProcessingStatus = %v, want %v", video.ProcessingStatus, StatusProcessing)
			}
			if video.Thumbnail != DefaultThumbnail {
				t.Errorf("NewVideo() Thumbnail = %v, want %v", video.Thumbnail, DefaultThumbnail)
			}
			if video.HasCustomThumbnail() {
				t.Error("NewVideo() should not report a custom thumbnail")
			}
			if video.VideoFile.ProcessedVariants == nil {
				t.Error("NewVideo() should initialize ProcessedVariants")
			}
		})
	}
}

func TestVideo_TransitionTo(t *testing.T) {
	tests := []struct {
		name       string
		from       ProcessingStatus
		next       ProcessingStatus
		wantErr    bool
		wantStatus ProcessingStatus
	}{
		{"processing -> ready", StatusProcessing, StatusReady, false, StatusReady},
		{"processing -> failed", StatusProcessing, StatusFailed, false, StatusFailed},
		{"ready -> failed is rejected", StatusReady, StatusFailed, true, StatusReady},
		{"invalid status value", StatusProcessing, ProcessingStatus("INVALID"), true, StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video, _ := NewVideo(uuid.New(), "test")
			video.ProcessingStatus = tt.from

			err := video.TransitionTo(tt.next)

			if (err != nil) != tt.wantErr {
				t.Errorf("Video.TransitionTo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if video.ProcessingStatus != tt.wantStatus {
				t.Errorf("Video.ProcessingStatus = %v, want %v", video.ProcessingStatus, tt.wantStatus)
			}
		})
	}
}

func TestVideo_ResetForReprocess(t *testing.T) {
	video, _ := NewVideo(uuid.New(), "test")

	if err := video.ResetForReprocess("/uploads/a.mp4"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ResetForReprocess() from processing error = %v, want %v", err, ErrInvalidTransition)
	}

	video.ProcessingStatus = StatusFailed
	video.ProcessingError = "boom"

	if err := video.ResetForReprocess("/uploads/a.mp4"); err != nil {
		t.Fatalf("ResetForReprocess() unexpected error = %v", err)
	}
	if video.ProcessingStatus != StatusProcessing {
		t.Errorf("ProcessingStatus = %v, want %v", video.ProcessingStatus, StatusProcessing)
	}
	if video.ProcessingError != "" {
		t.Errorf("ProcessingError = %q, want empty", video.ProcessingError)
	}
	if video.VideoFile.OriginalPath != "/uploads/a.mp4" {
		t.Errorf("OriginalPath = %v, want %v", video.VideoFile.OriginalPath, "/uploads/a.mp4")
	}
}

func TestVideo_Apply(t *testing.T) {
	video, _ := NewVideo(uuid.New(), "test")
	video.VideoFile.ProcessedVariants["360p"] = "a-360p.mp4"

	duration := 95.5
	status := StatusReady
	variants := map[string]string{"360p": "a-360p.mp4", "720p": "a-720p.mp4"}

	video.Apply(VideoFields{
		Duration:          &duration,
		ProcessingStatus:  &status,
		ProcessedVariants: variants,
	})

	if video.Duration != duration {
		t.Errorf("Duration = %v, want %v", video.Duration, duration)
	}
	if video.ProcessingStatus != StatusReady {
		t.Errorf("ProcessingStatus = %v, want %v", video.ProcessingStatus, StatusReady)
	}
	if len(video.VideoFile.ProcessedVariants) != 2 {
		t.Errorf("len(ProcessedVariants) = %d, want 2", len(video.VideoFile.ProcessedVariants))
	}
	if video.Thumbnail != DefaultThumbnail {
		t.Errorf("Thumbnail should be untouched, got %v", video.Thumbnail)
	}

	// The applied map must not alias the caller's map.
	variants["1080p"] = "x"
	if _, ok := video.VideoFile.ProcessedVariants["1080p"]; ok {
		t.Error("Apply() should copy ProcessedVariants")
	}
}

func TestVideoFields_IsEmpty(t *testing.T) {
	if !(VideoFields{}).IsEmpty() {
		t.Error("zero VideoFields should be empty")
	}
	msg := "x"
	if (VideoFields{ProcessingError: &msg}).IsEmpty() {
		t.Error("VideoFields with ProcessingError should not be empty")
	}
	if (VideoFields{ProcessedVariants: map[string]string{}}).IsEmpty() {
		t.Error("VideoFields with an empty non-nil map should not be empty")
	}
}

func TestVideo_HasCustomThumbnail(t *testing.T) {
	tests := []struct {
		name      string
		thumbnail string
		custom    bool
		want      bool
	}{
		{name: "default placeholder", thumbnail: DefaultThumbnail, want: false},
		{name: "generated by a job", thumbnail: "a.jpg", want: false},
		{name: "user supplied", thumbnail: "a-custom.png", custom: true, want: true},
		{name: "flag without thumbnail", thumbnail: DefaultThumbnail, custom: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &Video{Thumbnail: tt.thumbnail, CustomThumbnail: tt.custom}
			if got := v.HasCustomThumbnail(); got != tt.want {
				t.Errorf("HasCustomThumbnail() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVideo_IsReady(t *testing.T) {
	tests := []struct {
		status ProcessingStatus
		want   bool
	}{
		{StatusReady, true},
		{StatusUploading, false},
		{StatusProcessing, false},
		{StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			video := &Video{ProcessingStatus: tt.status}
			if got := video.IsReady(); got != tt.want {
				t.Errorf("Video.IsReady() = %v, want %v", got, tt.want)
			}
		})
	}
}
