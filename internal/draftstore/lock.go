package draftstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another submit holds the draft.
var ErrLocked = errors.New("draftstore: draft is locked")

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// Locker serializes submits of the same draft.
type Locker interface {
	Obtain(ctx context.Context, id string, ttl time.Duration) (Unlock, error)
}

// RedisLocker takes "lock:<prefix><id>" through redislock so submits are
// serialized across instances.
type RedisLocker struct {
	locker *redislock.Client
	prefix string
}

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisLocker{locker: redislock.New(client), prefix: prefix}
}

func (l *RedisLocker) Obtain(ctx context.Context, id string, ttl time.Duration) (Unlock, error) {
	lock, err := l.locker.Obtain(ctx, fmt.Sprintf("lock:%s%s", l.prefix, id), ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, id)
	}
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// MemoryLocker is the single-process Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]struct{}{}}
}

func (l *MemoryLocker) Obtain(_ context.Context, id string, _ time.Duration) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, id)
	}
	l.held[id] = struct{}{}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
