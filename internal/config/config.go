package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server      ServerConfig
	Worker      WorkerConfig
	Media       MediaConfig
	Database    DatabaseConfig
	RemoteStore RemoteStoreConfig
	RabbitMQ    RabbitMQConfig
	Redis       RedisConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"60s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	MaxUploadBytes  int64         `envconfig:"API_MAX_UPLOAD_BYTES" default:"2147483648"`
	MediaBaseURL    string        `envconfig:"API_MEDIA_BASE_URL" default:"http://localhost:8080/media"`
	CacheTTL        time.Duration `envconfig:"API_CACHE_TTL" default:"30s"`

	// EmbeddedWorker runs the worker pool inside the API process instead of
	// publishing jobs to RabbitMQ.
	EmbeddedWorker bool `envconfig:"API_EMBEDDED_WORKER" default:"false"`
}

type WorkerConfig struct {
	// Concurrency is the number of jobs processed at once. Zero means one per CPU.
	Concurrency     int           `envconfig:"WORKER_CONCURRENCY" default:"0"`
	QueueSize       int           `envconfig:"WORKER_QUEUE_SIZE" default:"64"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"5m"`
	LockTTL         time.Duration `envconfig:"WORKER_LOCK_TTL" default:"2m"`
	StaleAfter      time.Duration `envconfig:"WORKER_STALE_AFTER" default:"6h"`
	SweepInterval   time.Duration `envconfig:"WORKER_SWEEP_INTERVAL" default:"10m"`
	MetricsPort     int           `envconfig:"WORKER_METRICS_PORT" default:"9091"`
}

// PoolSize returns the effective worker concurrency.
func (c WorkerConfig) PoolSize() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return runtime.NumCPU()
}

type MediaConfig struct {
	UploadsDir    string `envconfig:"MEDIA_UPLOADS_DIR" default:"/var/lib/vidproc/uploads"`
	VideosDir     string `envconfig:"MEDIA_VIDEOS_DIR" default:"/var/lib/vidproc/videos"`
	ThumbnailsDir string `envconfig:"MEDIA_THUMBNAILS_DIR" default:"/var/lib/vidproc/thumbnails"`
	FFmpegPath    string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath   string `envconfig:"FFPROBE_PATH" default:"ffprobe"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"vidproc"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"vidproc"`
	DBName   string `envconfig:"POSTGRES_DB" default:"vidproc"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RemoteStoreConfig configures the optional remote media store.
// Processing falls back to local transcoding unless IsConfigured reports true.
type RemoteStoreConfig struct {
	Enabled       bool          `envconfig:"REMOTE_STORE_ENABLED" default:"false"`
	Endpoint      string        `envconfig:"REMOTE_STORE_ENDPOINT"`
	AccessKey     string        `envconfig:"REMOTE_STORE_ACCESS_KEY"`
	SecretKey     string        `envconfig:"REMOTE_STORE_SECRET_KEY"`
	Bucket        string        `envconfig:"REMOTE_STORE_BUCKET" default:"media"`
	UseSSL        bool          `envconfig:"REMOTE_STORE_USE_SSL" default:"false"`
	CDNBaseURL    string        `envconfig:"REMOTE_STORE_CDN_BASE_URL"`
	UploadTimeout time.Duration `envconfig:"REMOTE_UPLOAD_TIMEOUT" default:"10m"`
}

func (c RemoteStoreConfig) IsConfigured() bool {
	return c.Enabled &&
		c.Endpoint != "" &&
		c.AccessKey != "" &&
		c.SecretKey != "" &&
		c.Bucket != "" &&
		c.CDNBaseURL != ""
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"vidproc"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"vidproc"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
