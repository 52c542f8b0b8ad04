package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store remembers finished work in Redis for a limited time. Callers check
// Done before the work and Mark only once it has completed, so work that
// was interrupted is never remembered.
type Store struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewStore(rdb redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:%s:%d:%d", topic, partition, offset)
}

// Done reports whether key was marked and has not expired.
func (s *Store) Done(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Mark(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, "1", s.ttl).Err()
}

// Scope returns a view of the store whose keys live under idem:<name>:.
func (s *Store) Scope(name string) *Scoped {
	return &Scoped{store: s, prefix: "idem:" + name + ":"}
}

type Scoped struct {
	store  *Store
	prefix string
}

func (s *Scoped) Done(ctx context.Context, key string) (bool, error) {
	return s.store.Done(ctx, s.prefix+key)
}

func (s *Scoped) Mark(ctx context.Context, key string) error {
	return s.store.Mark(ctx, s.prefix+key)
}
