package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was taken by someone else is left alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// Redis is a lock shared by every replica using the same Redis.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger

	newToken func() string
}

// NewRedis creates a Redis-backed locker. ttl bounds how long a crashed
// holder can block others; retry is the polling interval while waiting.
func NewRedis(client redis.Cmdable, prefix string, ttl, retry time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		retry:    retry,
		logger:   logger.Named("lock"),
		newToken: uuid.NewString,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := r.newToken()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		// Released on a fresh context: the caller's may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), r.ttl)
		defer cancel()
		if err := r.client.Eval(ctx, releaseScript, []string{redisKey}, token).Err(); err != nil {
			// The key still expires after ttl; until then other writers wait.
			r.logger.Warn("release lock failed",
				zap.String("key", redisKey),
				zap.Duration("expires_within", r.ttl),
				zap.Error(err),
			)
		}
	}, nil
}
