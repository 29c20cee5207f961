package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConcurrencyConflict, "failed to acquire lock")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConcurrencyConflict, "lock not held by this owner")
)

const lockKeyPrefix = "priorart:lock:"

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// DistributedLock is a single named mutex.
type DistributedLock interface {
	// Lock retries TryLock until acquired, the retry budget is spent or ctx
	// ends.
	Lock(ctx context.Context) error
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) (bool, error)
	TTL(ctx context.Context) (time.Duration, error)
}

type LockOption func(*lockConfig)

func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) { c.retryDelay = delay }
}

func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) { c.retryCount = count }
}

type lockConfig struct {
	ttl        time.Duration
	retryDelay time.Duration
	retryCount int
}

// KeyedLocker hands out per-key locks: SET NX with a random token and a Lua
// compare-and-delete on release, so a holder whose lease expired cannot
// release a successor's lock.
type KeyedLocker struct {
	client *Client
	logger logging.Logger
}

func NewKeyedLocker(client *Client, log logging.Logger) *KeyedLocker {
	return &KeyedLocker{client: client, logger: log}
}

// TryLock attempts a single acquisition and returns the owner token.
func (l *KeyedLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l.client.isClosed() {
		return "", false, ErrClientClosed
	}
	token := uuid.NewString()
	ok, err := l.client.rdb.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock").WithDetail(key)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Refresh extends the lease if token still owns key.
func (l *KeyedLocker) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, l.client.rdb, []string{lockKeyPrefix + key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to extend lock").WithDetail(key)
	}
	return res == 1, nil
}

// Unlock releases key if token still owns it, else returns ErrLockNotHeld.
func (l *KeyedLocker) Unlock(ctx context.Context, key, token string) error {
	res, err := unlockScript.Run(ctx, l.client.rdb, []string{lockKeyPrefix + key}, token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock").WithDetail(key)
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// NewMutex returns a named lock on top of l. Defaults: 30s TTL, 30 retries
// every 100ms.
func (l *KeyedLocker) NewMutex(name string, opts ...LockOption) DistributedLock {
	cfg := lockConfig{ttl: 30 * time.Second, retryDelay: 100 * time.Millisecond, retryCount: 30}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &redisMutex{locker: l, name: name, config: cfg}
}

type redisMutex struct {
	locker *KeyedLocker
	name   string
	token  string
	config lockConfig
}

func (m *redisMutex) Lock(ctx context.Context) error {
	for i := 0; i < m.config.retryCount; i++ {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.retryDelay):
		}
	}
	return ErrLockNotAcquired
}

func (m *redisMutex) TryLock(ctx context.Context) (bool, error) {
	token, ok, err := m.locker.TryLock(ctx, m.name, m.config.ttl)
	if err != nil || !ok {
		return false, err
	}
	m.token = token
	return true, nil
}

func (m *redisMutex) Unlock(ctx context.Context) error {
	if m.token == "" {
		return ErrLockNotHeld
	}
	err := m.locker.Unlock(ctx, m.name, m.token)
	m.token = ""
	return err
}

func (m *redisMutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	if m.token == "" {
		return false, nil
	}
	return m.locker.Refresh(ctx, m.name, m.token, ttl)
}

func (m *redisMutex) TTL(ctx context.Context) (time.Duration, error) {
	return m.locker.client.rdb.PTTL(ctx, lockKeyPrefix+m.name).Result()
}
