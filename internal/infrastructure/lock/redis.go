// Package lock provides a Redis-backed per-video processing lock.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/vidproc/internal/domain/repository"
)

const lockKeyPrefix = "vidproc:video-lock:"

// Only the holder of the token may extend or release the lock.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// RedisLocker implements repository.VideoLocker with SET NX PX.
// A held lock is refreshed every TTL/3 until released, so a crashed holder
// frees the video after at most one TTL.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
}

var (
	_ repository.VideoLocker     = (*RedisLocker)(nil)
	_ repository.ActivityChecker = (*RedisLocker)(nil)
)

func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// TryLock acquires the lock for videoID or returns repository.ErrLockNotAcquired.
func (l *RedisLocker) TryLock(ctx context.Context, videoID uuid.UUID) (func(), error) {
	key := buildKey(videoID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, repository.ErrLockNotAcquired
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.refresh(key, token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				slog.Warn("failed to release video lock", "video_id", videoID, "error", err)
			}
		})
	}

	return release, nil
}

// IsLocked reports whether any worker currently holds the lock for videoID.
func (l *RedisLocker) IsLocked(ctx context.Context, videoID uuid.UUID) (bool, error) {
	n, err := l.client.Exists(ctx, buildKey(videoID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// IsActive implements repository.ActivityChecker for processes that run no pool.
// A lookup error counts as active.
func (l *RedisLocker) IsActive(ctx context.Context, videoID uuid.UUID) bool {
	locked, err := l.IsLocked(ctx, videoID)
	if err != nil {
		slog.Warn("failed to check video lock, assuming active", "video_id", videoID, "error", err)
		return true
	}
	return locked
}

func (l *RedisLocker) refresh(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				slog.Warn("failed to refresh video lock", "key", key, "error", err)
				continue
			}
			if n == 0 {
				slog.Warn("video lock lost before release", "key", key)
				return
			}
		}
	}
}

func buildKey(videoID uuid.UUID) string {
	return lockKeyPrefix + videoID.String()
}
