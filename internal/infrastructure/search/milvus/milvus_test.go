package milvus

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// fakeMilvus overrides the SDK methods the package calls; anything else
// panics through the nil embedded interface.
type fakeMilvus struct {
	client.Client

	healthy      bool
	hasColl      bool
	created      *entity.Schema
	indexedField string
	loaded       string
	upserted     []entity.Column
	searchExpr   string
	searchTopK   int
	results      []client.SearchResult
	searchErr    error
	closed       bool
}

func (f *fakeMilvus) CheckHealth(ctx context.Context) (*entity.MilvusState, error) {
	return &entity.MilvusState{IsHealthy: f.healthy, Reasons: []string{"querynode down"}}, nil
}

func (f *fakeMilvus) Close() error {
	f.closed = true
	return nil
}

func (f *fakeMilvus) HasCollection(ctx context.Context, name string) (bool, error) {
	return f.hasColl, nil
}

func (f *fakeMilvus) CreateCollection(ctx context.Context, schema *entity.Schema, shards int32, opts ...client.CreateCollectionOption) error {
	f.created = schema
	return nil
}

func (f *fakeMilvus) CreateIndex(ctx context.Context, coll string, field string, idx entity.Index, async bool, opts ...client.IndexOption) error {
	f.indexedField = field
	return nil
}

func (f *fakeMilvus) LoadCollection(ctx context.Context, coll string, async bool, opts ...client.LoadCollectionOption) error {
	f.loaded = coll
	return nil
}

func (f *fakeMilvus) Upsert(ctx context.Context, coll string, partition string, columns ...entity.Column) (entity.Column, error) {
	f.upserted = columns
	return nil, nil
}

func (f *fakeMilvus) Search(ctx context.Context, coll string, partitions []string, expr string, output []string,
	vectors []entity.Vector, vectorField string, metric entity.MetricType, topK int, sp entity.SearchParam,
	opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	f.searchExpr = expr
	f.searchTopK = topK
	return f.results, f.searchErr
}

func withFake(t *testing.T, f *fakeMilvus) *Client {
	t.Helper()
	prev := newMilvusClient
	newMilvusClient = func(ctx context.Context, conf client.Config) (client.Client, error) { return f, nil }
	t.Cleanup(func() { newMilvusClient = prev })

	c, err := NewClient(context.Background(), ClientConfig{Address: "localhost:19530", HealthCheckInterval: time.Hour}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func constEmbedder(dim int) priorart.Embedder {
	return priorart.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		v := make([]float32, dim)
		v[0] = 1
		return v, nil
	})
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(ClientConfig{Address: "localhost:19530"}))

	err := ValidateConfig(ClientConfig{ConnectTimeout: -time.Second})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Len(t, errors.Violations(err), 2)
}

func TestNewClient_Unhealthy(t *testing.T) {
	f := &fakeMilvus{healthy: false}
	prev := newMilvusClient
	newMilvusClient = func(ctx context.Context, conf client.Config) (client.Client, error) { return f, nil }
	defer func() { newMilvusClient = prev }()

	_, err := NewClient(context.Background(), ClientConfig{Address: "localhost:19530"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsUnavailable(err))
	assert.True(t, f.closed)
}

func TestNewClient_DialFailure(t *testing.T) {
	prev := newMilvusClient
	newMilvusClient = func(ctx context.Context, conf client.Config) (client.Client, error) {
		assert.Equal(t, "default", conf.DBName)
		assert.NotEmpty(t, conf.DialOptions)
		return nil, stderrors.New("connection refused")
	}
	defer func() { newMilvusClient = prev }()

	_, err := NewClient(context.Background(), ClientConfig{Address: "localhost:19530"}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearchUnavailable))
}

func TestBuildExpr(t *testing.T) {
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		sources []priorart.DocumentType
		cutoff  time.Time
		want    string
	}{
		{"none", nil, time.Time{}, ""},
		{"cutoff only", nil, cutoff, "publication_ts >= 1735689600"},
		{"types only", []priorart.DocumentType{priorart.DocumentTypePatent}, time.Time{}, `doc_type in ["patent"]`},
		{"both", []priorart.DocumentType{priorart.DocumentTypePatent, priorart.DocumentTypePublication}, cutoff,
			`publication_ts >= 1735689600 && doc_type in ["patent", "publication"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildExpr(tt.sources, tt.cutoff))
		})
	}
}

func TestDocumentSchema(t *testing.T) {
	s := DocumentSchema(CollectionConfig{Dimension: 384})
	assert.Equal(t, DefaultCollection, s.CollectionName)
	require.NotEmpty(t, s.Fields)
	assert.True(t, s.Fields[0].PrimaryKey)
	last := s.Fields[len(s.Fields)-1]
	assert.Equal(t, DefaultVectorField, last.Name)
	assert.Equal(t, "384", last.TypeParams["dim"])
}

func TestCollection_EnsureCreatesMissing(t *testing.T) {
	f := &fakeMilvus{healthy: true}
	coll := NewCollection(withFake(t, f), constEmbedder(8), CollectionConfig{Dimension: 8}, nil)

	require.NoError(t, coll.Ensure(context.Background()))
	require.NotNil(t, f.created)
	assert.Equal(t, DefaultVectorField, f.indexedField)
	assert.Equal(t, DefaultCollection, f.loaded)
}

func TestCollection_EnsureExisting(t *testing.T) {
	f := &fakeMilvus{healthy: true, hasColl: true}
	coll := NewCollection(withFake(t, f), constEmbedder(8), CollectionConfig{Dimension: 8}, nil)

	require.NoError(t, coll.Ensure(context.Background()))
	assert.Nil(t, f.created)
	assert.Equal(t, DefaultCollection, f.loaded)
}

func TestCollection_EnsureRequiresDimension(t *testing.T) {
	coll := NewCollection(withFake(t, &fakeMilvus{healthy: true}), constEmbedder(8), CollectionConfig{}, nil)
	assert.True(t, errors.IsValidation(coll.Ensure(context.Background())))
}

func TestCollection_Upsert(t *testing.T) {
	f := &fakeMilvus{healthy: true}
	coll := NewCollection(withFake(t, f), constEmbedder(4), CollectionConfig{Dimension: 4}, nil)
	docs := []priorart.Document{
		{Type: priorart.DocumentTypePatent, Identifier: "US1", Title: "One", Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			AuthorsOrInventors: []string{"A", "B"}},
		{Type: priorart.DocumentTypePublication, Identifier: "W2", Title: "Two", Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	n, err := coll.Upsert(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	byName := map[string]entity.Column{}
	for _, c := range f.upserted {
		byName[c.Name()] = c
	}
	assert.Len(t, byName, len(DocumentSchema(coll.cfg).Fields))
	pk, err := byName[fieldPK].Get(0)
	require.NoError(t, err)
	assert.Equal(t, "patent:US1", pk)
	inv, err := byName[fieldInventors].Get(0)
	require.NoError(t, err)
	assert.Equal(t, "A|B", inv)
	assert.Equal(t, 2, byName[DefaultVectorField].Len())
}

func TestCollection_UpsertDimensionMismatch(t *testing.T) {
	f := &fakeMilvus{healthy: true}
	coll := NewCollection(withFake(t, f), constEmbedder(3), CollectionConfig{Dimension: 4}, nil)

	_, err := coll.Upsert(context.Background(), []priorart.Document{{Type: priorart.DocumentTypePatent, Identifier: "US1", Title: "x"}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmbeddingUnavailable))
	assert.Nil(t, f.upserted)
}

func TestVectorSource_SearchCandidates(t *testing.T) {
	ts := time.Date(2025, 5, 6, 0, 0, 0, 0, time.UTC).Unix()
	f := &fakeMilvus{healthy: true, results: []client.SearchResult{{
		ResultCount: 2,
		Fields: client.ResultSet{
			entity.NewColumnVarChar(fieldDocType, []string{"patent", "patent"}),
			entity.NewColumnVarChar(fieldIdentifier, []string{"US7", ""}),
			entity.NewColumnVarChar(fieldTitle, []string{"Anode coating", "broken"}),
			entity.NewColumnVarChar(fieldAbstract, []string{"Thin film.", ""}),
			entity.NewColumnInt64(fieldPublicationTS, []int64{ts, ts}),
			entity.NewColumnVarChar(fieldInventors, []string{"X|Y", ""}),
			entity.NewColumnInt64(fieldFamilySize, []int64{3, 0}),
		},
	}}}
	src := NewVectorSource(withFake(t, f), constEmbedder(4), SourceConfig{TopK: 5}, nil, nil)
	src.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	docs, err := src.SearchCandidates(context.Background(), priorart.Profile{Title: "t", Abstract: "a"},
		[]priorart.DocumentType{priorart.DocumentTypePatent}, 30)
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "US7", docs[0].Identifier)
	assert.Equal(t, []string{"X", "Y"}, docs[0].AuthorsOrInventors)
	assert.Equal(t, 3, docs[0].FamilySize)
	assert.Equal(t, time.Unix(ts, 0).UTC(), docs[0].Date)
	assert.Equal(t, 5, f.searchTopK)
	assert.Equal(t, `publication_ts >= 1764633600 && doc_type in ["patent"]`, f.searchExpr)
}

func TestVectorSource_SearchFailure(t *testing.T) {
	f := &fakeMilvus{healthy: true, searchErr: stderrors.New("collection not loaded")}
	src := NewVectorSource(withFake(t, f), constEmbedder(4), SourceConfig{}, nil, nil)

	_, err := src.SearchCandidates(context.Background(), priorart.Profile{Title: "t", Abstract: "a"}, nil, 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearchUnavailable))
	assert.Empty(t, f.searchExpr)
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateBytes("abc", 5))
	assert.Equal(t, "ab", truncateBytes("abc", 2))
	// "é" is two bytes; never split it.
	assert.Equal(t, "a", truncateBytes("aé", 2))
}
