package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Locker grants short per-key leases. A token identifies the holder, so a
// holder whose lease expired cannot release its successor's lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

type lease struct {
	token   string
	expires time.Time
}

// LocalLocker is an in-process Locker for single-instance deployments
// without Redis.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]lease), now: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Refresh(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cur, ok := l.leases[key]
	if !ok || cur.token != token || !now.Before(cur.expires) {
		return false, nil
	}
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}
	return true, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[key]
	if !ok || cur.token != token || !l.now().Before(cur.expires) {
		return errors.New(errors.ErrCodeConcurrencyConflict, "lock not held by this owner").WithDetail(key)
	}
	delete(l.leases, key)
	return nil
}
