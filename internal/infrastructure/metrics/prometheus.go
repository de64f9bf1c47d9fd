// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vidproc"

var (
	// ProcessingJobsTotal tracks finished orchestrator runs.
	// Labels:
	//   - outcome: ready, failed, skipped, record_missing
	//   - path: local, remote, none
	ProcessingJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_jobs_total",
			Help:      "Total number of processing jobs by outcome",
		},
		[]string{"outcome", "path"},
	)

	// ProcessingDuration observes wall time of one orchestrator run.
	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Duration of processing jobs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"outcome"},
	)

	// VariantTranscodesTotal tracks individual variant encodes.
	// Labels:
	//   - label: 360p, 480p, 720p, 1080p
	//   - result: success, error
	VariantTranscodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variant_transcodes_total",
			Help:      "Total number of variant transcodes",
		},
		[]string{"label", "result"},
	)

	// FallbackCopiesTotal counts jobs that fell back to the verbatim source copy.
	FallbackCopiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_copies_total",
			Help:      "Total number of jobs that published the original source as the only variant",
		},
	)

	// ThumbnailFailuresTotal tracks non-fatal thumbnail failures.
	// Labels:
	//   - stage: generate, upload
	ThumbnailFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thumbnail_failures_total",
			Help:      "Total number of thumbnail generation or upload failures",
		},
		[]string{"stage"},
	)

	// RemoteStoreOperationsTotal tracks remote media store calls.
	// Labels:
	//   - operation: upload, delete
	//   - kind: image, video
	//   - status: success, error
	RemoteStoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_store_operations_total",
			Help:      "Total number of remote media store operations",
		},
		[]string{"operation", "kind", "status"},
	)

	// PoolInFlightJobs is the number of jobs queued or running in the worker pool.
	PoolInFlightJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_in_flight_jobs",
			Help:      "Number of jobs queued or running in the worker pool",
		},
	)

	// PoolRejectedJobsTotal tracks jobs the pool refused.
	// Labels:
	//   - reason: in_flight, queue_full, closed, locked
	PoolRejectedJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_rejected_jobs_total",
			Help:      "Total number of jobs rejected by the worker pool",
		},
		[]string{"reason"},
	)

	// StaleVideosFailedTotal counts records failed by the staleness sweeper.
	StaleVideosFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_videos_failed_total",
			Help:      "Total number of videos marked failed after exceeding the processing deadline",
		},
	)

	// CacheOperationsTotal tracks cache operations (get, set, delete).
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, update
	//   - table: videos
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts API requests by chi route pattern, not raw path.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Job outcome constants.
const (
	OutcomeReady         = "ready"
	OutcomeFailed        = "failed"
	OutcomeSkipped       = "skipped"
	OutcomeRecordMissing = "record_missing"
)

// Processing path constants.
const (
	PathLocal  = "local"
	PathRemote = "remote"
	PathNone   = "none"
)

// Generic result constants.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Thumbnail failure stage constants.
const (
	ThumbnailStageGenerate = "generate"
	ThumbnailStageUpload   = "upload"
)

// Remote store operation constants.
const (
	RemoteOpUpload = "upload"
	RemoteOpDelete = "delete"
)

// Pool rejection reason constants.
const (
	RejectInFlight  = "in_flight"
	RejectQueueFull = "queue_full"
	RejectClosed    = "closed"
	RejectLocked    = "locked"
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis = "redis"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryUpdate = "update"
)

// Table name constants.
const (
	TableVideos = "videos"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
