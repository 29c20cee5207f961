package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// SourceConfig tunes candidate retrieval.
type SourceConfig struct {
	Index      string
	MaxResults int
}

// CandidateSource retrieves lexically similar documents from the index. It
// implements priorart.CandidateSource.
type CandidateSource struct {
	client  *Client
	cfg     SourceConfig
	logger  logging.Logger
	metrics *prometheus.AppMetrics
}

var _ priorart.CandidateSource = (*CandidateSource)(nil)

func NewCandidateSource(client *Client, cfg SourceConfig, logger logging.Logger, metrics *prometheus.AppMetrics) *CandidateSource {
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CandidateSource{client: client, cfg: cfg, logger: logger, metrics: metrics}
}

// SearchCandidates runs a multi_match over title and abstract, filtered by
// document type and publication date. Hits that fail schema validation are
// logged and skipped.
func (s *CandidateSource) SearchCandidates(ctx context.Context, query priorart.Profile, sources []priorart.DocumentType, lookbackDays int) ([]priorart.Document, error) {
	body, err := json.Marshal(buildQuery(query, sources, lookbackDays, s.cfg.MaxResults))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode search query")
	}

	start := time.Now()
	req := opensearchapi.SearchRequest{
		Index: []string{s.cfg.Index},
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, s.client.API())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchUnavailable, "opensearch search failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, errorResponse(resp)
	}

	hits, err := decodeHits(resp.Body)
	if err != nil {
		return nil, err
	}

	docs := make([]priorart.Document, 0, len(hits))
	for _, h := range hits {
		doc, err := priorart.Normalize(priorart.SchemaPatentIndex, h.Source)
		if err != nil {
			s.logger.Warn("dropping malformed index document", logging.String("id", h.ID), logging.Err(err))
			s.metrics.RecordDropped("malformed_document")
			continue
		}
		docs = append(docs, doc)
	}
	s.logger.Debug("opensearch candidates retrieved",
		logging.String("index", s.cfg.Index),
		logging.Int("hits", len(hits)),
		logging.Int("kept", len(docs)),
		logging.Duration("took", time.Since(start)))
	return docs, nil
}

// buildQuery renders the search body. Keywords only contribute to relevance;
// they are never hard requirements.
func buildQuery(p priorart.Profile, sources []priorart.DocumentType, lookbackDays, size int) map[string]interface{} {
	var filters []interface{}
	if len(sources) > 0 {
		types := make([]string, len(sources))
		for i, t := range sources {
			types[i] = string(t)
		}
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"doc_type": types},
		})
	}
	if lookbackDays > 0 {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{
				"publication_date": map[string]interface{}{"gte": fmt.Sprintf("now-%dd/d", lookbackDays)},
			},
		})
	}

	boolQuery := map[string]interface{}{
		"must": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  p.SearchText(),
				"fields": []string{"title^2", "abstract"},
				"type":   "best_fields",
			},
		},
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	return map[string]interface{}{
		"size":  size,
		"query": map[string]interface{}{"bool": boolQuery},
	}
}

type hit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

func decodeHits(body io.Reader) ([]hit, error) {
	var resp struct {
		Hits struct {
			Hits []hit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to decode search response")
	}
	return resp.Hits.Hits, nil
}

func errorResponse(resp *opensearchapi.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var e struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	detail := resp.Status()
	if json.Unmarshal(b, &e) == nil && e.Error.Reason != "" {
		detail = fmt.Sprintf("%s: %s", e.Error.Type, e.Error.Reason)
	}
	return errors.New(errors.ErrCodeSearchUnavailable, "opensearch request failed").WithDetail(detail)
}
