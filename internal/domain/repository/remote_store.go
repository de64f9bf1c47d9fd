package repository

import "context"

// MediaKind selects how the remote store treats an uploaded file.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// RemoteMedia describes an object accepted by the remote media store.
type RemoteMedia struct {
	URL      string
	RemoteID string
	// Duration and Format are filled only when the store reports them.
	Duration float64
	Format   string
}

// RemoteMediaStore defines an optional object-storage/CDN service that can host
// media instead of local transcoding. IsConfigured must be consulted before any call.
type RemoteMediaStore interface {
	IsConfigured() bool

	// UploadMedia uploads the file at path. Failures are *model.RemoteStoreError.
	// The local file is never removed by the store.
	UploadMedia(ctx context.Context, path string, kind MediaKind) (*RemoteMedia, error)

	// DeleteMedia removes a remote object. Errors are logged and swallowed.
	DeleteMedia(ctx context.Context, remoteID string, kind MediaKind)

	// BuildVariantURL returns the delivery URL of remoteID at the given quality label.
	// It reports false when the label is unknown or remoteID is empty.
	BuildVariantURL(remoteID, label string) (string, bool)
}
