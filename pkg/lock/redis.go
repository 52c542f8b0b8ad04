package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every instance pointing at the same server.
// A lock expires after ttl even if its holder never releases it.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

func NewRedis(rdb redis.UniversalClient, prefix string, ttl, wait time.Duration) *Redis {
	if wait <= 0 {
		wait = ttl
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl, wait: wait}
}

func (r *Redis) key(key string) string {
	return fmt.Sprintf("lock:%s:%s", r.prefix, key)
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.key(key)
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(200*time.Millisecond),
		backoff.WithMaxElapsedTime(r.wait),
	)
	err := backoff.Retry(func() error {
		ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrNotAcquired
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if errors.Is(err, ErrNotAcquired) || ctx.Err() != nil {
			return nil, errors.Join(ErrNotAcquired, err)
		}
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}

	return func() {
		// The holder's context may already be done; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = unlockScript.Run(rctx, r.rdb, []string{k}, token).Err()
	}, nil
}
