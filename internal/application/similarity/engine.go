// Package similarity ranks prior-art candidates against a research profile by
// cosine similarity of their embeddings, and decorates the embedding and
// search collaborators with bounded retries and multi-source fan-out.
package similarity

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// DefaultConcurrency bounds parallel candidate embedding.
const DefaultConcurrency = 8

// Ranker is the engine contract consumed by the analysis and alerting layers.
type Ranker interface {
	Rank(ctx context.Context, profile priorart.Profile, candidates []priorart.Document, opts ...RankOption) ([]priorart.ScoredDocument, error)
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

type rankOptions struct {
	minScore float64
	limit    int
}

// RankOption adjusts a single Rank call.
type RankOption func(*rankOptions)

// WithMinScore drops documents scoring strictly below cutoff.
func WithMinScore(cutoff float64) RankOption {
	return func(o *rankOptions) { o.minScore = cutoff }
}

// WithLimit truncates the sorted result to n entries. n ≤ 0 means no limit.
func WithLimit(n int) RankOption {
	return func(o *rankOptions) { o.limit = n }
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *prometheus.AppMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine is stateless between calls and safe for concurrent use.
type Engine struct {
	embedder    priorart.Embedder
	concurrency int
	logger      logging.Logger
	metrics     *prometheus.AppMetrics
}

func NewEngine(embedder priorart.Embedder, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder:    embedder,
		concurrency: DefaultConcurrency,
		logger:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank embeds profile and every candidate, scores each candidate by cosine
// similarity and returns them ordered by score desc, date desc, identifier
// asc, type asc. A candidate that cannot be embedded, or whose vector
// dimension differs from the profile's, is dropped and logged. Failure to
// embed the profile fails the call with ErrCodeEmbeddingUnavailable.
func (e *Engine) Rank(ctx context.Context, profile priorart.Profile, candidates []priorart.Document, opts ...RankOption) ([]priorart.ScoredDocument, error) {
	o := rankOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if len(candidates) == 0 {
		return []priorart.ScoredDocument{}, nil
	}
	start := time.Now()

	query, err := e.embedder.Embed(ctx, profile.Text())
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeEmbeddingUnavailable) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingUnavailable, "failed to embed research profile")
	}
	if len(query) == 0 {
		return nil, errors.New(errors.ErrCodeEmbeddingUnavailable, "embedding provider returned an empty vector")
	}

	// Each goroutine writes only its own slot.
	scores := make([]float64, len(candidates))
	ok := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range candidates {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			vec, err := e.embedder.Embed(gctx, candidates[i].Text())
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.drop(candidates[i], "embedding_failed", err)
				return nil
			}
			if len(vec) != len(query) {
				e.drop(candidates[i], "dimension_mismatch", nil)
				return nil
			}
			scores[i] = Cosine(query, vec)
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]priorart.ScoredDocument, 0, len(candidates))
	for i, d := range candidates {
		if !ok[i] || scores[i] < o.minScore {
			continue
		}
		ranked = append(ranked, priorart.NewScoredDocument(d, scores[i]))
	}
	SortRanked(ranked)
	if o.limit > 0 && len(ranked) > o.limit {
		ranked = ranked[:o.limit]
	}

	e.metrics.RecordRank(len(candidates), time.Since(start))
	return ranked, nil
}

func (e *Engine) drop(d priorart.Document, reason string, err error) {
	e.metrics.RecordDropped(reason)
	e.logger.Warn("dropping candidate",
		logging.String("reason", reason),
		logging.String("document", d.Key().String()),
		logging.Err(err),
	)
}

// SortRanked orders ranked documents deterministically in place.
func SortRanked(ranked []priorart.ScoredDocument) {
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Document.Date.Equal(b.Document.Date) {
			return a.Document.Date.After(b.Document.Date)
		}
		if a.Document.Identifier != b.Document.Identifier {
			return a.Document.Identifier < b.Document.Identifier
		}
		return a.Document.Type < b.Document.Type
	})
}

// Cosine returns the cosine similarity of a and b clamped to [0,1]. Zero
// vectors, mismatched lengths and NaN results score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
