package similarity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

var fastPolicy = RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestRetryingEmbedder_SucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	inner := priorart.EmbedderFunc(func(context.Context, string) ([]float32, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("503 from provider")
		}
		return []float32{1}, nil
	})

	v, err := NewRetryingEmbedder(inner, fastPolicy).Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v)
	assert.Equal(t, 3, calls)
}

func TestRetryingEmbedder_BoundedAtTwoRetries(t *testing.T) {
	calls := 0
	inner := priorart.EmbedderFunc(func(context.Context, string) ([]float32, error) {
		calls++
		return nil, fmt.Errorf("down")
	})

	policy := fastPolicy
	policy.MaxRetries = 10
	_, err := NewRetryingEmbedder(inner, policy).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, 3, calls, "one call plus at most two retries")
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmbeddingUnavailable))
}

func TestRetryingEmbedder_DoesNotRetryValidation(t *testing.T) {
	calls := 0
	inner := priorart.EmbedderFunc(func(context.Context, string) ([]float32, error) {
		calls++
		return nil, errors.NewValidationError("bad input", nil)
	})
	_, err := NewRetryingEmbedder(inner, fastPolicy).Embed(context.Background(), "x")
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 1, calls)
}

func TestRetryingEmbedder_StopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	inner := priorart.EmbedderFunc(func(context.Context, string) ([]float32, error) {
		calls++
		cancel()
		return nil, fmt.Errorf("interrupted")
	})
	_, err := NewRetryingEmbedder(inner, fastPolicy).Embed(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryingSource_ExhaustionIsSearchUnavailable(t *testing.T) {
	calls := 0
	inner := priorart.CandidateSourceFunc(func(context.Context, priorart.Profile, []priorart.DocumentType, int) ([]priorart.Document, error) {
		calls++
		return nil, fmt.Errorf("timeout")
	})
	_, err := NewRetryingSource("opensearch", inner, fastPolicy).SearchCandidates(context.Background(), profile, nil, 30)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearchUnavailable))
	assert.Contains(t, err.Error(), "opensearch failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestRetryingSource_KeepsExistingCode(t *testing.T) {
	original := errors.New(errors.ErrCodeSearchUnavailable, "cluster red")
	inner := priorart.CandidateSourceFunc(func(context.Context, priorart.Profile, []priorart.DocumentType, int) ([]priorart.Document, error) {
		return nil, original
	})
	_, err := NewRetryingSource("", inner, RetryPolicy{}).SearchCandidates(context.Background(), profile, nil, 0)
	assert.Same(t, original, err)
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, BaseDelay: 100 * time.Millisecond, MaxDelay: 150 * time.Millisecond}.normalized()
	first := p.backoff(1)
	assert.GreaterOrEqual(t, first, 100*time.Millisecond)
	assert.Less(t, first, 125*time.Millisecond)

	second := p.backoff(2)
	assert.GreaterOrEqual(t, second, 150*time.Millisecond)
	assert.Less(t, second, 188*time.Millisecond)

	assert.Equal(t, 0, RetryPolicy{MaxRetries: -1}.normalized().MaxRetries)
}
