package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNoVideoFrames is returned when the source contains no decodable video frame.
var ErrNoVideoFrames = errors.New("source has no video frames")

// ProbeError reports that media metadata could not be read. It aborts a job.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ThumbnailError reports a failed still extraction. Never fatal to a job.
type ThumbnailError struct {
	Path string
	Err  error
}

func (e *ThumbnailError) Error() string {
	return fmt.Sprintf("generate thumbnail from %s: %v", e.Path, e.Err)
}

func (e *ThumbnailError) Unwrap() error { return e.Err }

// TranscodeError reports a failed variant encode. Fatal only to that variant.
type TranscodeError struct {
	Label string
	Err   error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Label, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// RemoteStoreError reports a failed remote media store call.
type RemoteStoreError struct {
	Op  string
	Err error
}

func (e *RemoteStoreError) Error() string {
	return fmt.Sprintf("remote store %s: %v", e.Op, e.Err)
}

func (e *RemoteStoreError) Unwrap() error { return e.Err }

// JobErrorKind classifies job-level failures.
type JobErrorKind string

const (
	JobErrorRecordMissing JobErrorKind = "record_missing"
)

// JobError reports a job that could not start.
type JobError struct {
	Kind    JobErrorKind
	VideoID uuid.UUID
	Err     error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s for video %s: %v", e.Kind, e.VideoID, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }
