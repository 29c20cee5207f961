package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

var testProfile = priorart.Profile{
	Title:    "Sodium-ion cathode",
	Abstract: "A layered oxide cathode with a prussian blue coating for sodium-ion cells.",
	Keywords: []string{"sodium", "cathode"},
}

const searchResponse = `{
  "hits": {"hits": [
    {"_id": "patent:US1", "_score": 7.1, "_source": {
      "doc_type": "patent", "identifier": "US1", "title": "Coated sodium cathode",
      "abstract": "Layered oxide.", "publication_date": "2025-06-01",
      "inventors": ["A. Inventor"], "assignee": "Acme", "family_size": 4}},
    {"_id": "broken", "_score": 5.0, "_source": {"doc_type": "patent", "identifier": "", "title": "x"}},
    {"_id": "publication:W9", "_score": 3.2, "_source": {
      "doc_type": "publication", "identifier": "W9", "title": "Prussian blue analogues",
      "abstract": "Review.", "publication_date": "2025-02-11T00:00:00Z", "forward_citations": 12}}
  ]}
}`

func TestBuildQuery(t *testing.T) {
	q := buildQuery(testProfile, []priorart.DocumentType{priorart.DocumentTypePatent}, 30, 25)

	b, err := json.Marshal(q)
	require.NoError(t, err)
	var decoded struct {
		Size  int `json:"size"`
		Query struct {
			Bool struct {
				Must struct {
					MultiMatch struct {
						Query  string   `json:"query"`
						Fields []string `json:"fields"`
					} `json:"multi_match"`
				} `json:"must"`
				Filter []map[string]map[string]json.RawMessage `json:"filter"`
			} `json:"bool"`
		} `json:"query"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, 25, decoded.Size)
	assert.Equal(t, testProfile.SearchText(), decoded.Query.Bool.Must.MultiMatch.Query)
	assert.Equal(t, []string{"title^2", "abstract"}, decoded.Query.Bool.Must.MultiMatch.Fields)
	require.Len(t, decoded.Query.Bool.Filter, 2)
	assert.JSONEq(t, `["patent"]`, string(decoded.Query.Bool.Filter[0]["terms"]["doc_type"]))
	assert.JSONEq(t, `{"gte":"now-30d/d"}`, string(decoded.Query.Bool.Filter[1]["range"]["publication_date"]))
}

func TestBuildQuery_NoFilters(t *testing.T) {
	q := buildQuery(priorart.Profile{Title: "t", Abstract: "a"}, nil, 0, 10)
	boolQuery := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	_, hasFilter := boolQuery["filter"]
	assert.False(t, hasFilter)
}

func TestCandidateSource_SearchCandidates(t *testing.T) {
	cluster := &fakeCluster{route: func(w http.ResponseWriter, r *http.Request, body string) {
		_, _ = io.WriteString(w, searchResponse)
	}}
	src := NewCandidateSource(newTestClient(t, cluster), SourceConfig{MaxResults: 20}, nil, nil)

	docs, err := src.SearchCandidates(context.Background(), testProfile,
		[]priorart.DocumentType{priorart.DocumentTypePatent, priorart.DocumentTypePublication}, 365)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "US1", docs[0].Identifier)
	assert.Equal(t, "Acme", docs[0].SourceOrAssignee)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), docs[0].Date)
	assert.Equal(t, priorart.DocumentTypePublication, docs[1].Type)
	assert.Equal(t, 12, docs[1].ForwardCitations)

	reqs := cluster.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/"+DefaultIndex+"/_search", reqs[0].Path)
	assert.Contains(t, reqs[0].Body, `"size":20`)
	assert.Contains(t, reqs[0].Body, `now-365d/d`)
}

func TestCandidateSource_ClusterError(t *testing.T) {
	cluster := &fakeCluster{route: func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"parsing_exception","reason":"unknown query"}}`)
	}}
	src := NewCandidateSource(newTestClient(t, cluster), SourceConfig{}, nil, nil)

	_, err := src.SearchCandidates(context.Background(), testProfile, nil, 30)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearchUnavailable))
	assert.Contains(t, err.Error(), "parsing_exception: unknown query")
}
