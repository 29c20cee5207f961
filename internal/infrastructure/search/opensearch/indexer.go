package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// DefaultBulkBatchSize caps documents per bulk request.
const DefaultBulkBatchSize = 500

// BulkResult summarises a bulk load.
type BulkResult struct {
	Indexed int
	Failed  int
	Errors  []BulkItemError
}

type BulkItemError struct {
	DocID  string
	Type   string
	Reason string
}

// Indexer creates the document index and loads canonical documents into it.
type Indexer struct {
	client    *Client
	index     string
	batchSize int
	logger    logging.Logger
}

func NewIndexer(client *Client, index string, logger logging.Logger) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Indexer{client: client, index: index, batchSize: DefaultBulkBatchSize, logger: logger}
}

// DocumentMapping is the index mapping for priorart.IndexRecord.
func DocumentMapping() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	integer := map[string]interface{}{"type": "integer"}
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"doc_type":          keyword,
				"identifier":        keyword,
				"title":             map[string]interface{}{"type": "text", "analyzer": "english"},
				"abstract":          map[string]interface{}{"type": "text", "analyzer": "english"},
				"publication_date":  map[string]interface{}{"type": "date", "format": "yyyy-MM-dd||strict_date_optional_time"},
				"inventors":         keyword,
				"assignee":          keyword,
				"country":           keyword,
				"family_size":       integer,
				"forward_citations": integer,
				"recent_citations":  integer,
				"url":               map[string]interface{}{"type": "keyword", "index": false},
			},
		},
	}
}

// EnsureIndex creates the index with DocumentMapping unless it exists.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	exists, err := opensearchapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client.API())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to check index")
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(DocumentMapping())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode index mapping")
	}
	resp, err := opensearchapi.IndicesCreateRequest{Index: i.index, Body: bytes.NewReader(body)}.Do(ctx, i.client.API())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to create index")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return errorResponse(resp)
	}
	i.logger.Info("opensearch index created", logging.String("index", i.index))
	return nil
}

// IndexDocuments bulk-loads docs keyed by their DocumentKey, so reloading a
// document overwrites it. Per-item failures are reported in the result;
// transport failures abort the load.
func (i *Indexer) IndexDocuments(ctx context.Context, docs []priorart.Document) (*BulkResult, error) {
	result := &BulkResult{}
	for start := 0; start < len(docs); start += i.batchSize {
		end := min(start+i.batchSize, len(docs))
		if err := i.bulk(ctx, docs[start:end], result); err != nil {
			return result, err
		}
	}
	i.logger.Info("documents indexed",
		logging.String("index", i.index),
		logging.Int("indexed", result.Indexed),
		logging.Int("failed", result.Failed))
	return result, nil
}

func (i *Indexer) bulk(ctx context.Context, batch []priorart.Document, result *BulkResult) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range batch {
		meta := map[string]interface{}{"index": map[string]string{"_index": i.index, "_id": d.Key().String()}}
		if err := enc.Encode(meta); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode bulk action")
		}
		if err := enc.Encode(priorart.IndexRecordFromDocument(d)); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode document")
		}
	}

	resp, err := opensearchapi.BulkRequest{Body: &buf}.Do(ctx, i.client.API())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchUnavailable, "bulk request failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return errorResponse(resp)
	}

	var body struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to decode bulk response")
	}
	for _, item := range body.Items {
		for _, op := range item {
			if op.Error == nil {
				result.Indexed++
				continue
			}
			result.Failed++
			result.Errors = append(result.Errors, BulkItemError{DocID: op.ID, Type: op.Error.Type, Reason: op.Error.Reason})
		}
	}
	return nil
}
