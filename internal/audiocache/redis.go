package audiocache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces audio blobs within a shared redis instance.
const redisKeyPrefix = "tts-cache:"

// Redis is a [Store] backed by a shared redis instance, letting multiple
// service replicas share one audio cache.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*Redis)(nil)

// RedisOption configures a [Redis] store.
type RedisOption func(*Redis)

// WithTTL sets an expiry on stored blobs. Zero (the default) means no expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// NewRedis creates a redis-backed store using the given client. The caller
// owns the client's lifecycle.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Get implements [Store].
func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := r.client.HGetAll(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("audiocache: redis get %q: %w", key, err)
	}
	if len(vals) == 0 {
		return Entry{}, false, nil
	}
	return Entry{
		Audio:     []byte(vals["audio"]),
		MediaType: vals["media_type"],
	}, true, nil
}

// Put implements [Store].
func (r *Redis) Put(ctx context.Context, key string, e Entry) error {
	full := redisKeyPrefix + key
	if err := r.client.HSet(ctx, full,
		"audio", e.Audio,
		"media_type", e.MediaType,
	).Err(); err != nil {
		return fmt.Errorf("audiocache: redis put %q: %w", key, err)
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, full, r.ttl).Err(); err != nil {
			return fmt.Errorf("audiocache: redis expire %q: %w", key, err)
		}
	}
	return nil
}

// Ping reports whether the backing redis instance is reachable. Used as a
// readiness check.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("audiocache: redis ping: %w", err)
	}
	return nil
}
