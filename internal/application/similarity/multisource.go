package similarity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// NamedSource labels a CandidateSource for logs and metrics.
type NamedSource struct {
	Name   string
	Source priorart.CandidateSource
}

// MultiSource queries several sources in parallel and merges the results.
// Records are deduplicated by (type, identifier) with the earlier source
// winning, restricted to the requested types and lookback window. The call
// fails only when every source fails.
type MultiSource struct {
	sources []NamedSource
	now     func() time.Time
	logger  logging.Logger
	metrics *prometheus.AppMetrics
}

func NewMultiSource(logger logging.Logger, metrics *prometheus.AppMetrics, sources ...NamedSource) *MultiSource {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &MultiSource{sources: sources, now: time.Now, logger: logger, metrics: metrics}
}

func (m *MultiSource) SearchCandidates(ctx context.Context, query priorart.Profile, types []priorart.DocumentType, lookbackDays int) ([]priorart.Document, error) {
	if len(m.sources) == 0 {
		return nil, errors.New(errors.ErrCodeSearchUnavailable, "no candidate sources configured")
	}

	results := make([][]priorart.Document, len(m.sources))
	errs := make([]error, len(m.sources))

	var g errgroup.Group
	for i, s := range m.sources {
		i, s := i, s
		g.Go(func() error {
			start := time.Now()
			docs, err := s.Source.SearchCandidates(ctx, query, types, lookbackDays)
			m.metrics.RecordSourceSearch(s.Name, time.Since(start))
			if err != nil {
				m.logger.Warn("candidate source failed", logging.String("source", s.Name), logging.Err(err))
				errs[i] = err
				return nil
			}
			results[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	var msgs []string
	for i, err := range errs {
		if err != nil {
			failed++
			msgs = append(msgs, fmt.Sprintf("%s: %v", m.sources[i].Name, err))
		}
	}
	if failed == len(m.sources) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.New(errors.ErrCodeSearchUnavailable, "all candidate sources failed").
			WithDetail(strings.Join(msgs, "; ")).WithCause(errs[0])
	}

	cutoff := priorart.LookbackCutoff(m.now(), lookbackDays)
	seen := make(map[priorart.DocumentKey]struct{})
	merged := make([]priorart.Document, 0)
	for _, docs := range results {
		for _, d := range priorart.FilterTypes(docs, types) {
			if !d.PublishedSince(cutoff) {
				continue
			}
			if _, dup := seen[d.Key()]; dup {
				continue
			}
			seen[d.Key()] = struct{}{}
			merged = append(merged, d)
		}
	}
	return merged, nil
}
