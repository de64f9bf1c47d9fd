package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/domain/repository"
	"github.com/hszk-dev/vidproc/internal/infrastructure/metrics"
)

// minioClient defines the subset of MinIO operations the remote store needs.
// This abstraction allows for easier unit testing with mocks.
type minioClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// *minio.Client satisfies minioClient directly.
var _ minioClient = (*minio.Client)(nil)

// ClientConfig holds configuration for the MinIO-backed remote store.
type ClientConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// CDNBaseURL is the public delivery origin in front of the bucket.
	// Variant URLs are CDN transformation paths below it.
	CDNBaseURL    string
	UploadTimeout time.Duration
}

// RemoteStore implements repository.RemoteMediaStore on a MinIO bucket behind a CDN.
type RemoteStore struct {
	client        minioClient
	bucket        string
	cdnBaseURL    string
	uploadTimeout time.Duration
	deleteTimeout time.Duration
}

const defaultDeleteTimeout = 30 * time.Second

// Compile-time verification that RemoteStore implements repository.RemoteMediaStore.
var _ repository.RemoteMediaStore = (*RemoteStore)(nil)

// NewRemoteStore creates a MinIO client for the remote store.
// It verifies the bucket exists during initialization to fail fast on misconfiguration.
func NewRemoteStore(ctx context.Context, cfg ClientConfig) (*RemoteStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return newRemoteStore(ctx, client, cfg)
}

// newRemoteStore creates a RemoteStore with a given minioClient implementation.
// This is used for dependency injection in tests.
func newRemoteStore(ctx context.Context, client minioClient, cfg ClientConfig) (*RemoteStore, error) {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", repository.ErrBucketNotFound, cfg.Bucket)
	}

	timeout := cfg.UploadTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &RemoteStore{
		client:        client,
		bucket:        cfg.Bucket,
		cdnBaseURL:    strings.TrimRight(cfg.CDNBaseURL, "/"),
		uploadTimeout: timeout,
		deleteTimeout: defaultDeleteTimeout,
	}, nil
}

// IsConfigured always reports true; an unconfigured store is a DisabledRemoteStore.
func (s *RemoteStore) IsConfigured() bool {
	return true
}

// UploadMedia uploads the file at path under a fresh key in the kind's folder.
// The upload is bounded by the configured timeout. The local file is left in place.
func (s *RemoteStore) UploadMedia(ctx context.Context, path string, kind repository.MediaKind) (*repository.RemoteMedia, error) {
	media, err := s.upload(ctx, path, kind)
	if err != nil {
		metrics.RemoteStoreOperationsTotal.WithLabelValues(metrics.RemoteOpUpload, string(kind), metrics.ResultError).Inc()
		return nil, &model.RemoteStoreError{Op: "upload " + string(kind), Err: err}
	}

	metrics.RemoteStoreOperationsTotal.WithLabelValues(metrics.RemoteOpUpload, string(kind), metrics.ResultSuccess).Inc()
	return media, nil
}

func (s *RemoteStore) upload(ctx context.Context, path string, kind repository.MediaKind) (*repository.RemoteMedia, error) {
	folder, err := folderFor(kind)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	key := folder + "/" + uuid.NewString() + ext

	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	_, err = s.client.PutObject(ctx, s.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentType(ext, kind),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("upload timed out after %s: %w", s.uploadTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}

	return &repository.RemoteMedia{
		URL:      s.objectURL(key),
		RemoteID: key,
		Format:   strings.TrimPrefix(ext, "."),
	}, nil
}

// DeleteMedia removes a remote object. Failures are logged and swallowed.
func (s *RemoteStore) DeleteMedia(ctx context.Context, remoteID string, kind repository.MediaKind) {
	if remoteID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.deleteTimeout)
	defer cancel()

	if err := s.client.RemoveObject(ctx, s.bucket, remoteID, minio.RemoveObjectOptions{}); err != nil {
		metrics.RemoteStoreOperationsTotal.WithLabelValues(metrics.RemoteOpDelete, string(kind), metrics.ResultError).Inc()
		slog.Warn("failed to delete remote media",
			"remote_id", remoteID,
			"kind", kind,
			"error", err,
		)
		return
	}

	metrics.RemoteStoreOperationsTotal.WithLabelValues(metrics.RemoteOpDelete, string(kind), metrics.ResultSuccess).Inc()
}

// BuildVariantURL returns the CDN transformation URL of remoteID at label.
// "original" maps to the untouched object.
func (s *RemoteStore) BuildVariantURL(remoteID, label string) (string, bool) {
	if remoteID == "" {
		return "", false
	}
	if label == model.LabelOriginal {
		return s.objectURL(remoteID), true
	}
	if _, ok := model.QualityByLabel(label); !ok {
		return "", false
	}
	return fmt.Sprintf("%s/%s/%s", s.cdnBaseURL, label, remoteID), true
}

// Ping verifies the MinIO connection is alive by checking bucket access.
func (s *RemoteStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("failed to ping minio: %w", err)
	}
	return nil
}

func (s *RemoteStore) objectURL(key string) string {
	return s.cdnBaseURL + "/" + key
}

func folderFor(kind repository.MediaKind) (string, error) {
	switch kind {
	case repository.MediaKindVideo:
		return "videos", nil
	case repository.MediaKindImage:
		return "thumbnails", nil
	default:
		return "", fmt.Errorf("unknown media kind %q", kind)
	}
}

func contentType(ext string, kind repository.MediaKind) string {
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if kind == repository.MediaKindImage {
		return "image/jpeg"
	}
	return "video/mp4"
}

// DisabledRemoteStore is used when no remote store is configured.
// Every job routes to local processing.
type DisabledRemoteStore struct{}

var _ repository.RemoteMediaStore = DisabledRemoteStore{}

func (DisabledRemoteStore) IsConfigured() bool { return false }

func (DisabledRemoteStore) UploadMedia(context.Context, string, repository.MediaKind) (*repository.RemoteMedia, error) {
	return nil, &model.RemoteStoreError{Op: "upload", Err: repository.ErrRemoteStoreNotConfigured}
}

func (DisabledRemoteStore) DeleteMedia(context.Context, string, repository.MediaKind) {}

func (DisabledRemoteStore) BuildVariantURL(string, string) (string, bool) { return "", false }
