package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	clock := testNow
	l := NewLocalLocker()
	l.now = func() time.Time { return clock }

	token, ok, err := l.TryLock(ctx, "alert:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "alert:a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	_, ok, _ = l.TryLock(ctx, "alert:b", time.Minute)
	assert.True(t, ok, "keys are independent")

	held, err := l.Refresh(ctx, "alert:a", token, time.Minute)
	require.NoError(t, err)
	assert.True(t, held)

	// Lease lapses; a new holder takes over and the stale token is powerless.
	clock = clock.Add(2 * time.Minute)
	next, ok, _ := l.TryLock(ctx, "alert:a", time.Minute)
	require.True(t, ok)

	held, _ = l.Refresh(ctx, "alert:a", token, time.Minute)
	assert.False(t, held)
	err = l.Unlock(ctx, "alert:a", token)
	assert.True(t, errors.IsConflict(err))

	require.NoError(t, l.Unlock(ctx, "alert:a", next))
	_, ok, _ = l.TryLock(ctx, "alert:a", time.Minute)
	assert.True(t, ok)
}
