package usecase

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hszk-dev/vidproc/internal/domain/model"
	"github.com/hszk-dev/vidproc/internal/domain/repository"
	"github.com/hszk-dev/vidproc/internal/media"
)

// mustWriteFile is a test helper that writes a file and fails the test on error.
func mustWriteFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write test file %s: %v", path, err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// newTestDirs creates the media directories under a temp root.
func newTestDirs(t *testing.T) media.Dirs {
	t.Helper()
	root := t.TempDir()
	dirs := media.Dirs{
		Uploads:    filepath.Join(root, "uploads"),
		Videos:     filepath.Join(root, "videos"),
		Thumbnails: filepath.Join(root, "thumbnails"),
	}
	if err := dirs.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs() error = %v", err)
	}
	return dirs
}

// mockVideoRepository provides a configurable mock for VideoRepository.
type mockVideoRepository struct {
	createFn              func(ctx context.Context, video *model.Video) error
	getByIDFn             func(ctx context.Context, id uuid.UUID) (*model.Video, error)
	updateFn              func(ctx context.Context, video *model.Video, expected model.ProcessingStatus) error
	updateFieldsFn        func(ctx context.Context, id uuid.UUID, fields model.VideoFields) error
	listStaleProcessingFn func(ctx context.Context, olderThan time.Time, limit int) ([]*model.Video, error)
}

func (m *mockVideoRepository) Create(ctx context.Context, video *model.Video) error {
	if m.createFn != nil {
		return m.createFn(ctx, video)
	}
	return nil
}

func (m *mockVideoRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Video, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrVideoNotFound
}

func (m *mockVideoRepository) Update(ctx context.Context, video *model.Video, expected model.ProcessingStatus) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, video, expected)
	}
	return nil
}

func (m *mockVideoRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields model.VideoFields) error {
	if m.updateFieldsFn != nil {
		return m.updateFieldsFn(ctx, id, fields)
	}
	return nil
}

func (m *mockVideoRepository) ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*model.Video, error) {
	if m.listStaleProcessingFn != nil {
		return m.listStaleProcessingFn(ctx, olderThan, limit)
	}
	return nil, nil
}

// memVideoRepository is an in-memory VideoRepository that enforces the
// same status guard as the PostgreSQL implementation.
type memVideoRepository struct {
	mu             sync.Mutex
	videos         map[uuid.UUID]*model.Video
	updates        []model.VideoFields
	terminalWrites int

	// updateFieldsErr injects a failure before the guard is evaluated.
	updateFieldsErr func(fields model.VideoFields) error
}

func newMemVideoRepository(videos ...*model.Video) *memVideoRepository {
	r := &memVideoRepository{videos: make(map[uuid.UUID]*model.Video)}
	for _, v := range videos {
		r.videos[v.ID] = v
	}
	return r
}

func (r *memVideoRepository) Create(ctx context.Context, video *model.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.videos[video.ID]; ok {
		return repository.ErrDuplicateVideo
	}
	r.videos[video.ID] = cloneVideo(video)
	return nil
}

func (r *memVideoRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, repository.ErrVideoNotFound
	}
	return cloneVideo(v), nil
}

func (r *memVideoRepository) Update(ctx context.Context, video *model.Video, expected model.ProcessingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[video.ID]
	if !ok {
		return repository.ErrVideoNotFound
	}
	if v.ProcessingStatus != expected {
		return repository.ErrVideoNotUpdatable
	}
	r.videos[video.ID] = cloneVideo(video)
	return nil
}

func (r *memVideoRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields model.VideoFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.updateFieldsErr != nil {
		if err := r.updateFieldsErr(fields); err != nil {
			return err
		}
	}

	v, ok := r.videos[id]
	if !ok {
		return repository.ErrVideoNotFound
	}
	if v.ProcessingStatus.IsTerminal() {
		return repository.ErrVideoNotUpdatable
	}

	v.Apply(fields)
	r.updates = append(r.updates, fields)
	if fields.ProcessingStatus != nil && fields.ProcessingStatus.IsTerminal() {
		r.terminalWrites++
	}
	return nil
}

func (r *memVideoRepository) ListStaleProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*model.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Video
	for _, v := range r.videos {
		if !v.ProcessingStatus.IsTerminal() && v.UpdatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, cloneVideo(v))
		}
	}
	return out, nil
}

func (r *memVideoRepository) get(t *testing.T, id uuid.UUID) *model.Video {
	t.Helper()
	v, err := r.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) error = %v", id, err)
	}
	return v
}

// setStatus changes a stored status directly, as a concurrent job would.
func (r *memVideoRepository) setStatus(id uuid.UUID, status model.ProcessingStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos[id].ProcessingStatus = status
}

func (r *memVideoRepository) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *memVideoRepository) terminalWriteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminalWrites
}

func cloneVideo(v *model.Video) *model.Video {
	c := *v
	c.VideoFile.ProcessedVariants = maps.Clone(v.VideoFile.ProcessedVariants)
	return &c
}

// mockRemoteStore provides a configurable mock for RemoteMediaStore.
type mockRemoteStore struct {
	configured bool
	uploadFn   func(ctx context.Context, path string, kind repository.MediaKind) (*repository.RemoteMedia, error)

	mu      sync.Mutex
	uploads []repository.MediaKind
	deleted []string
	// unboundedDeletes counts deletes issued without a deadline.
	unboundedDeletes int
}

func (m *mockRemoteStore) IsConfigured() bool {
	return m.configured
}

func (m *mockRemoteStore) UploadMedia(ctx context.Context, path string, kind repository.MediaKind) (*repository.RemoteMedia, error) {
	m.mu.Lock()
	m.uploads = append(m.uploads, kind)
	m.mu.Unlock()

	if m.uploadFn != nil {
		return m.uploadFn(ctx, path, kind)
	}
	id := fmt.Sprintf("%ss/%s%s", kind, uuid.NewString(), filepath.Ext(path))
	return &repository.RemoteMedia{URL: "https://cdn.test/" + id, RemoteID: id}, nil
}

func (m *mockRemoteStore) DeleteMedia(ctx context.Context, remoteID string, kind repository.MediaKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, remoteID)
	if _, ok := ctx.Deadline(); !ok {
		m.unboundedDeletes++
	}
}

func (m *mockRemoteStore) BuildVariantURL(remoteID, label string) (string, bool) {
	if remoteID == "" {
		return "", false
	}
	if label == model.LabelOriginal {
		return "https://cdn.test/" + remoteID, true
	}
	if _, ok := model.QualityByLabel(label); !ok {
		return "", false
	}
	return "https://cdn.test/" + label + "/" + remoteID, true
}

func (m *mockRemoteStore) uploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

// mockProber provides a configurable mock for media.Prober.
type mockProber struct {
	probeFn func(ctx context.Context, path string) (*media.ProbeResult, error)
}

func (m *mockProber) Probe(ctx context.Context, path string) (*media.ProbeResult, error) {
	if m.probeFn != nil {
		return m.probeFn(ctx, path)
	}
	return &media.ProbeResult{DurationSeconds: 10, Width: 1920, Height: 1080, Codec: "h264"}, nil
}

func probeReturning(width, height int, duration float64) *mockProber {
	return &mockProber{
		probeFn: func(ctx context.Context, path string) (*media.ProbeResult, error) {
			return &media.ProbeResult{DurationSeconds: duration, Width: width, Height: height, Codec: "h264"}, nil
		},
	}
}

// mockThumbnailer writes a placeholder JPEG unless generateFn says otherwise.
type mockThumbnailer struct {
	generateFn func(ctx context.Context, sourcePath, outputPath string, durationSeconds float64) error

	mu    sync.Mutex
	calls int
}

func (m *mockThumbnailer) Generate(ctx context.Context, sourcePath, outputPath string, durationSeconds float64) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.generateFn != nil {
		return m.generateFn(ctx, sourcePath, outputPath, durationSeconds)
	}
	return os.WriteFile(outputPath, []byte("jpeg"), 0644)
}

func (m *mockThumbnailer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockTranscoder records attempted labels and writes the output file on success.
type mockTranscoder struct {
	transcodeFn func(ctx context.Context, inputPath, outputPath string, quality model.Quality) error

	mu     sync.Mutex
	labels []string
}

func (m *mockTranscoder) TranscodeVariant(ctx context.Context, inputPath, outputPath string, quality model.Quality) error {
	m.mu.Lock()
	m.labels = append(m.labels, quality.Label)
	m.mu.Unlock()

	if m.transcodeFn != nil {
		return m.transcodeFn(ctx, inputPath, outputPath, quality)
	}
	return os.WriteFile(outputPath, []byte("mp4 "+quality.Label), 0644)
}

func (m *mockTranscoder) attempted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.labels...)
}

// mockJobSubmitter provides a configurable mock for JobSubmitter.
type mockJobSubmitter struct {
	submitFn func(ctx context.Context, videoID uuid.UUID, sourcePath string, useRemoteStore bool) error

	mu   sync.Mutex
	jobs []model.ProcessingJob
}

func (m *mockJobSubmitter) SubmitProcessingJob(ctx context.Context, videoID uuid.UUID, sourcePath string, useRemoteStore bool) error {
	if m.submitFn != nil {
		if err := m.submitFn(ctx, videoID, sourcePath, useRemoteStore); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, model.ProcessingJob{VideoID: videoID, SourcePath: sourcePath, UseRemoteStore: useRemoteStore})
	return nil
}

// mockActivityChecker reports the IDs in active as busy.
type mockActivityChecker struct {
	active     map[uuid.UUID]bool
	isActiveFn func(ctx context.Context, videoID uuid.UUID) bool
}

func (m *mockActivityChecker) IsActive(ctx context.Context, videoID uuid.UUID) bool {
	if m.isActiveFn != nil {
		return m.isActiveFn(ctx, videoID)
	}
	return m.active[videoID]
}

// mockVideoCache is a mock implementation of VideoCache for testing.
type mockVideoCache struct {
	mu       sync.RWMutex
	data     map[uuid.UUID]*model.Video
	deletes  int
	getFn    func(ctx context.Context, videoID uuid.UUID) (*model.Video, error)
	setFn    func(ctx context.Context, video *model.Video, ttl time.Duration) error
	deleteFn func(ctx context.Context, videoID uuid.UUID) error
}

func newMockVideoCache() *mockVideoCache {
	return &mockVideoCache{
		data: make(map[uuid.UUID]*model.Video),
	}
}

func (m *mockVideoCache) Get(ctx context.Context, videoID uuid.UUID) (*model.Video, error) {
	if m.getFn != nil {
		return m.getFn(ctx, videoID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[videoID], nil
}

func (m *mockVideoCache) Set(ctx context.Context, video *model.Video, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, video, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[video.ID] = video
	return nil
}

func (m *mockVideoCache) Delete(ctx context.Context, videoID uuid.UUID) error {
	m.mu.Lock()
	m.deletes++
	m.mu.Unlock()
	if m.deleteFn != nil {
		return m.deleteFn(ctx, videoID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, videoID)
	return nil
}

func (m *mockVideoCache) deleteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deletes
}
