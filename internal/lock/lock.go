// Package lock serializes shift lifecycle operations across server replicas.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

var ErrNotObtained = errors.New("lock not obtained")

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

// LocalLocker is an in-process Locker used when Redis is not configured.
// Keys expire after their ttl even if never released.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localEntry
}

type localEntry struct {
	token     uint64
	expiresAt time.Time
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  uint64
}

var localTokens struct {
	sync.Mutex
	next uint64
}

func NewLocal() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry)}
}

func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return nil, ErrNotObtained
	}
	localTokens.Lock()
	localTokens.next++
	token := localTokens.next
	localTokens.Unlock()

	l.held[key] = localEntry{token: token, expiresAt: now.Add(ttl)}
	return &localLock{locker: l, key: key, token: token}, nil
}

func (l *localLock) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if entry, ok := l.locker.held[l.key]; ok && entry.token == l.token {
		delete(l.locker.held, l.key)
	}
	return nil
}

type RedisLocker struct {
	client *redislock.Client
}

func NewRedis(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(client)}
}

func (r *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	l, err := r.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}
