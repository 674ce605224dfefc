package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig controls a Redis locker.
type RedisConfig struct {
	Prefix       string
	Timeout      time.Duration
	TTL          time.Duration
	PollInterval time.Duration
}

// Redis is a Locker shared by every process using the same Redis server.
// Keys expire after TTL so a crashed holder cannot block others forever.
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
	logger *slog.Logger
}

// NewRedis returns a Redis locker with defaults applied.
func NewRedis(client redis.UniversalClient, cfg RedisConfig, logger *slog.Logger) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "booking:lock:"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, cfg: cfg, logger: logger}
}

// Acquire takes every key in sorted order or none of them.
func (r *Redis) Acquire(ctx context.Context, keys ...string) (Unlock, error) {
	keys = normalize(keys)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	held := make([]string, 0, len(keys))
	releaseHeld := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(releaseCtx, r.client, []string{held[i]}, token).Err(); err != nil {
				r.logger.WarnContext(ctx, "failed to release lock", "key", held[i], "error", err)
			}
		}
	}

	for _, key := range keys {
		full := r.cfg.Prefix + key
		if err := r.lock(waitCtx, full, token); err != nil {
			releaseHeld()
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, waitError(ctx, key)
			}
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		held = append(held, full)
	}
	return once(releaseHeld), nil
}

func (r *Redis) lock(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.cfg.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
