package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store claims request keys in Redis. A claim lives for ttl, after which the
// same key is accepted again.
type Store struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, prefix: "idem:order:"}
}

func (s *Store) Key(requestKey string) string {
	return s.prefix + requestKey
}

// Claim reports true if this call is the first to present requestKey.
func (s *Store) Claim(ctx context.Context, requestKey string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.Key(requestKey), time.Now().UTC().Format(time.RFC3339Nano), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (s *Store) Release(ctx context.Context, requestKey string) error {
	if err := s.rdb.Del(ctx, s.Key(requestKey)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
