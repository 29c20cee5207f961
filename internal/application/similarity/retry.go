package similarity

import (
	"context"
	"math/rand"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// MaxRetries is the hard upper bound on retries of a single collaborator call.
const MaxRetries = 2

// RetryPolicy bounds retries of collaborator calls.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries twice starting at 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: MaxRetries, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.MaxRetries > MaxRetries {
		p.MaxRetries = MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// backoff doubles per attempt up to MaxDelay and adds up to 25% jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if q := int64(d / 4); q > 0 {
		d += time.Duration(rand.Int63n(q))
	}
	return d
}

// retryable excludes caller mistakes and caller cancellation.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.IsValidation(err) && !errors.IsCode(err, errors.ErrCodeDocumentInvalid)
}

type retrier struct {
	policy  RetryPolicy
	name    string
	code    errors.ErrorCode
	logger  logging.Logger
	metrics *prometheus.AppMetrics
}

func (r retrier) do(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			r.metrics.RecordRetry(r.name)
			wait := r.policy.backoff(attempt)
			r.logger.Debug("retrying collaborator call",
				logging.String("collaborator", r.name),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", wait),
			)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err = op(); err == nil {
			return nil
		}
		if !retryable(ctx, err) {
			return err
		}
	}
	r.metrics.RecordCollaboratorFailure(r.name)
	if errors.IsCode(err, r.code) {
		return err
	}
	return errors.Wrapf(err, r.code, "%s failed after %d attempts", r.name, r.policy.MaxRetries+1)
}

// RetryOption configures the retrying decorators.
type RetryOption func(*retrier)

func RetryLogger(l logging.Logger) RetryOption {
	return func(r *retrier) {
		if l != nil {
			r.logger = l
		}
	}
}

func RetryMetrics(m *prometheus.AppMetrics) RetryOption {
	return func(r *retrier) { r.metrics = m }
}

func newRetrier(name string, code errors.ErrorCode, p RetryPolicy, opts []RetryOption) retrier {
	r := retrier{policy: p.normalized(), name: name, code: code, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// RetryingEmbedder retries a failing Embedder and reports exhaustion as
// ErrCodeEmbeddingUnavailable.
type RetryingEmbedder struct {
	inner priorart.Embedder
	r     retrier
}

func NewRetryingEmbedder(inner priorart.Embedder, p RetryPolicy, opts ...RetryOption) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, r: newRetrier("embedder", errors.ErrCodeEmbeddingUnavailable, p, opts)}
}

func (e *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := e.r.do(ctx, func() error {
		v, err := e.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// RetryingSource retries a failing CandidateSource and reports exhaustion as
// ErrCodeSearchUnavailable.
type RetryingSource struct {
	inner priorart.CandidateSource
	r     retrier
}

func NewRetryingSource(name string, inner priorart.CandidateSource, p RetryPolicy, opts ...RetryOption) *RetryingSource {
	if name == "" {
		name = "search"
	}
	return &RetryingSource{inner: inner, r: newRetrier(name, errors.ErrCodeSearchUnavailable, p, opts)}
}

func (s *RetryingSource) SearchCandidates(ctx context.Context, query priorart.Profile, sources []priorart.DocumentType, lookbackDays int) ([]priorart.Document, error) {
	var out []priorart.Document
	err := s.r.do(ctx, func() error {
		docs, err := s.inner.SearchCandidates(ctx, query, sources, lookbackDays)
		if err != nil {
			return err
		}
		out = docs
		return nil
	})
	return out, err
}
