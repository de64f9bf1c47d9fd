package repository

import "errors"

var (
	// ErrVideoNotFound is returned when a video cannot be found.
	ErrVideoNotFound = errors.New("video not found")

	// ErrDuplicateVideo is returned when attempting to create a video that already exists.
	ErrDuplicateVideo = errors.New("video already exists")

	// ErrVideoNotUpdatable is returned when a processing update targets a
	// video that has already reached a terminal status.
	ErrVideoNotUpdatable = errors.New("video is not in a processing state")

	// ErrJobInFlight is returned when a job for the same video is already queued or running.
	ErrJobInFlight = errors.New("processing job already in flight for video")

	// ErrQueueFull is returned when the worker pool cannot accept more jobs.
	ErrQueueFull = errors.New("processing queue is full")

	// ErrPoolClosed is returned when submitting to a pool that is shutting down.
	ErrPoolClosed = errors.New("processing pool is closed")

	// ErrLockNotAcquired is returned when another process holds the video lock.
	ErrLockNotAcquired = errors.New("video lock held by another worker")

	// ErrRemoteStoreNotConfigured is returned by remote store calls made without configuration.
	ErrRemoteStoreNotConfigured = errors.New("remote media store is not configured")

	// ErrBucketNotFound is returned when the configured remote bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)
