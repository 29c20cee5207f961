package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// SourceConfig tunes nearest-neighbour retrieval.
type SourceConfig struct {
	Collection  string
	VectorField string
	MetricType  entity.MetricType
	TopK        int
	NProbe      int
}

// VectorSource embeds the profile and returns its nearest stored documents.
// It implements priorart.CandidateSource.
type VectorSource struct {
	client   *Client
	embedder priorart.Embedder
	cfg      SourceConfig
	logger   logging.Logger
	metrics  *prometheus.AppMetrics
	now      func() time.Time
}

var _ priorart.CandidateSource = (*VectorSource)(nil)

func NewVectorSource(c *Client, embedder priorart.Embedder, cfg SourceConfig, logger logging.Logger, metrics *prometheus.AppMetrics) *VectorSource {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.VectorField == "" {
		cfg.VectorField = DefaultVectorField
	}
	if cfg.MetricType == "" {
		cfg.MetricType = entity.COSINE
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 100
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = 16
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &VectorSource{client: c, embedder: embedder, cfg: cfg, logger: logger, metrics: metrics, now: time.Now}
}

func (s *VectorSource) SearchCandidates(ctx context.Context, query priorart.Profile, sources []priorart.DocumentType, lookbackDays int) ([]priorart.Document, error) {
	vec, err := s.embedder.Embed(ctx, query.Text())
	if err != nil {
		return nil, err
	}
	sp, err := entity.NewIndexIvfFlatSearchParam(s.cfg.NProbe)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid search parameters")
	}

	expr := buildExpr(sources, priorart.LookbackCutoff(s.now(), lookbackDays))
	results, err := s.client.API().Search(ctx, s.cfg.Collection, nil, expr, outputFields,
		[]entity.Vector{entity.FloatVector(vec)}, s.cfg.VectorField, s.cfg.MetricType, s.cfg.TopK, sp)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchUnavailable, "milvus search failed")
	}
	if len(results) == 0 {
		return nil, nil
	}
	if results[0].Err != nil {
		return nil, errors.Wrap(results[0].Err, errors.ErrCodeSearchUnavailable, "milvus search failed")
	}

	records := recordsFromColumns(results[0].Fields, results[0].ResultCount)
	docs := make([]priorart.Document, 0, len(records))
	for _, r := range records {
		d, err := r.ToDocument()
		if err != nil {
			s.logger.Warn("dropping malformed vector hit", logging.String("identifier", r.Identifier), logging.Err(err))
			s.metrics.RecordDropped("malformed_document")
			continue
		}
		docs = append(docs, d)
	}
	s.logger.Debug("milvus candidates retrieved",
		logging.String("collection", s.cfg.Collection),
		logging.String("expr", expr),
		logging.Int("kept", len(docs)))
	return docs, nil
}

// buildExpr renders the boolean filter for the lookback cutoff and the
// requested document types. A zero cutoff and empty types yield "".
func buildExpr(sources []priorart.DocumentType, cutoff time.Time) string {
	var parts []string
	if !cutoff.IsZero() {
		parts = append(parts, fmt.Sprintf("%s >= %d", fieldPublicationTS, cutoff.Unix()))
	}
	if len(sources) > 0 {
		quoted := make([]string, len(sources))
		for i, t := range sources {
			quoted[i] = fmt.Sprintf("%q", string(t))
		}
		parts = append(parts, fmt.Sprintf("%s in [%s]", fieldDocType, strings.Join(quoted, ", ")))
	}
	return strings.Join(parts, " && ")
}

// recordsFromColumns pivots the column-oriented result into one IndexRecord
// per hit. Unknown columns are ignored.
func recordsFromColumns(cols client.ResultSet, n int) []priorart.IndexRecord {
	records := make([]priorart.IndexRecord, n)
	for _, col := range cols {
		for i := 0; i < n && i < col.Len(); i++ {
			v, err := col.Get(i)
			if err != nil {
				continue
			}
			setField(&records[i], col.Name(), v)
		}
	}
	return records
}

func setField(r *priorart.IndexRecord, name string, v interface{}) {
	switch x := v.(type) {
	case string:
		switch name {
		case fieldDocType:
			r.DocType = x
		case fieldIdentifier:
			r.Identifier = x
		case fieldTitle:
			r.Title = x
		case fieldAbstract:
			r.Abstract = x
		case fieldAssignee:
			r.Assignee = x
		case fieldInventors:
			if x != "" {
				r.Inventors = strings.Split(x, inventorSeparator)
			}
		case fieldCountry:
			r.Country = x
		case fieldURL:
			r.URL = x
		}
	case int64:
		switch name {
		case fieldPublicationTS:
			r.PublicationDate = time.Unix(x, 0).UTC().Format("2006-01-02")
		case fieldFamilySize:
			r.FamilySize = int(x)
		case fieldForwardCitations:
			r.ForwardCitations = int(x)
		case fieldRecentCitations:
			r.RecentCitations = int(x)
		}
	}
}
