package draftstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shipdraft/draft-service/pkg/logger"
	"github.com/shipdraft/draft-service/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// RedisStore implements Store on Redis.
// Drafts are stored as JSON under "<prefix><id>" with the RFC 3339 save time
// under "<prefix><id>:savedAt". A zero TTL keeps drafts until cleared.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed draft store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) Save(ctx context.Context, id string, tree map[string]any) {
	b, ok := encode(id, tree)
	if !ok {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.key(id), b, r.ttl)
		p.Set(ctx, r.key(id)+savedAtSuffix, now, r.ttl)
		return nil
	})
	if err != nil {
		saveFailed(id, err)
		return
	}
	metrics.AutosaveWrites.WithLabelValues("ok").Inc()
}

func (r *RedisStore) Load(ctx context.Context, id string) map[string]any {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.DraftCacheMisses.WithLabelValues("absent").Inc()
			return nil
		}
		logger.WithFields(logrus.Fields{"draft": id}).Warnf("load local draft: %v", err)
		metrics.DraftCacheMisses.WithLabelValues("error").Inc()
		return nil
	}
	return decode(id, b)
}

func (r *RedisStore) Clear(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id), r.key(id)+savedAtSuffix).Err()
}

func (r *RedisStore) SavedAt(ctx context.Context, id string) (time.Time, bool) {
	s, err := r.client.Get(ctx, r.key(id)+savedAtSuffix).Result()
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
