package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

func TestKeyedLocker_ExclusiveUntilReleased(t *testing.T) {
	client, mr := newTestClient(t)
	l := NewKeyedLocker(client, logging.NewNopLogger())
	ctx := context.Background()

	token, ok, err := l.TryLock(ctx, "alert:a1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("priorart:lock:alert:a1"))

	_, ok, err = l.TryLock(ctx, "alert:a1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	_, ok, err = l.TryLock(ctx, "alert:a2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	require.NoError(t, l.Unlock(ctx, "alert:a1", token))
	_, ok, err = l.TryLock(ctx, "alert:a1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKeyedLocker_StaleTokenCannotReleaseOrRefresh(t *testing.T) {
	client, mr := newTestClient(t)
	l := NewKeyedLocker(client, logging.NewNopLogger())
	ctx := context.Background()

	stale, ok, err := l.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	fresh, ok, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	refreshed, err := l.Refresh(ctx, "k", stale, time.Minute)
	require.NoError(t, err)
	assert.False(t, refreshed)

	err = l.Unlock(ctx, "k", stale)
	assert.ErrorIs(t, err, ErrLockNotHeld)
	assert.True(t, errors.IsConflict(err))
	assert.True(t, mr.Exists("priorart:lock:k"), "successor's lock survives")

	refreshed, err = l.Refresh(ctx, "k", fresh, 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, 2*time.Minute, mr.TTL("priorart:lock:k"))
}

func TestMutex_LockUnlock(t *testing.T) {
	client, mr := newTestClient(t)
	l := NewKeyedLocker(client, logging.NewNopLogger())
	ctx := context.Background()

	m := l.NewMutex("cleanup", WithLockTTL(time.Minute))
	require.NoError(t, m.Lock(ctx))
	ttl, err := m.TTL(ctx)
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	ok, err := m.Extend(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Unlock(ctx))
	assert.False(t, mr.Exists("priorart:lock:cleanup"))
	assert.ErrorIs(t, m.Unlock(ctx), ErrLockNotHeld)
}

func TestMutex_Contention(t *testing.T) {
	client, _ := newTestClient(t)
	l := NewKeyedLocker(client, logging.NewNopLogger())
	ctx := context.Background()

	first := l.NewMutex("m", WithRetryCount(1), WithRetryDelay(time.Millisecond))
	second := l.NewMutex("m", WithRetryCount(2), WithRetryDelay(time.Millisecond))

	require.NoError(t, first.Lock(ctx))
	assert.ErrorIs(t, second.Lock(ctx), ErrLockNotAcquired)

	require.NoError(t, first.Unlock(ctx))
	assert.NoError(t, second.Lock(ctx))
}
