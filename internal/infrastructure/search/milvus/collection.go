package milvus

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

const (
	DefaultCollection  = "priorart_documents"
	DefaultVectorField = "embedding"

	fieldPK               = "pk"
	fieldDocType          = "doc_type"
	fieldIdentifier       = "identifier"
	fieldTitle            = "title"
	fieldAbstract         = "abstract"
	fieldPublicationTS    = "publication_ts"
	fieldAssignee         = "assignee"
	fieldInventors        = "inventors"
	fieldCountry          = "country"
	fieldFamilySize       = "family_size"
	fieldForwardCitations = "forward_citations"
	fieldRecentCitations  = "recent_citations"
	fieldURL              = "url"

	// inventors are flattened into one VARCHAR.
	inventorSeparator = "|"
)

var varcharLimits = map[string]int{
	fieldPK:         192,
	fieldDocType:    16,
	fieldIdentifier: 160,
	fieldTitle:      1024,
	fieldAbstract:   8192,
	fieldAssignee:   512,
	fieldInventors:  2048,
	fieldCountry:    16,
	fieldURL:        1024,
}

// outputFields are returned with every hit; the vector itself is not.
var outputFields = []string{
	fieldDocType, fieldIdentifier, fieldTitle, fieldAbstract, fieldPublicationTS,
	fieldAssignee, fieldInventors, fieldCountry, fieldFamilySize,
	fieldForwardCitations, fieldRecentCitations, fieldURL,
}

// CollectionConfig describes the document collection.
type CollectionConfig struct {
	Name        string
	VectorField string
	Dimension   int
	MetricType  entity.MetricType
	NList       int
	ShardsNum   int32
	// EmbedConcurrency bounds parallel Embed calls during upsert.
	EmbedConcurrency int
}

func (c CollectionConfig) withDefaults() CollectionConfig {
	if c.Name == "" {
		c.Name = DefaultCollection
	}
	if c.VectorField == "" {
		c.VectorField = DefaultVectorField
	}
	if c.MetricType == "" {
		c.MetricType = entity.COSINE
	}
	if c.NList == 0 {
		c.NList = 1024
	}
	if c.ShardsNum == 0 {
		c.ShardsNum = 2
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = 4
	}
	return c
}

// DocumentSchema is the collection layout for canonical documents.
func DocumentSchema(cfg CollectionConfig) *entity.Schema {
	cfg = cfg.withDefaults()
	varchar := func(name string, pk bool) *entity.Field {
		return &entity.Field{
			Name:       name,
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: pk,
			TypeParams: map[string]string{"max_length": strconv.Itoa(varcharLimits[name])},
		}
	}
	int64Field := func(name string) *entity.Field {
		return &entity.Field{Name: name, DataType: entity.FieldTypeInt64}
	}
	return &entity.Schema{
		CollectionName: cfg.Name,
		Description:    "prior-art documents with text embeddings",
		Fields: []*entity.Field{
			varchar(fieldPK, true),
			varchar(fieldDocType, false),
			varchar(fieldIdentifier, false),
			varchar(fieldTitle, false),
			varchar(fieldAbstract, false),
			int64Field(fieldPublicationTS),
			varchar(fieldAssignee, false),
			varchar(fieldInventors, false),
			varchar(fieldCountry, false),
			int64Field(fieldFamilySize),
			int64Field(fieldForwardCitations),
			int64Field(fieldRecentCitations),
			varchar(fieldURL, false),
			{
				Name:       cfg.VectorField,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(cfg.Dimension)},
			},
		},
	}
}

// Collection manages the document collection and loads documents into it.
type Collection struct {
	client   *Client
	embedder priorart.Embedder
	cfg      CollectionConfig
	logger   logging.Logger
}

func NewCollection(client *Client, embedder priorart.Embedder, cfg CollectionConfig, logger logging.Logger) *Collection {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Collection{client: client, embedder: embedder, cfg: cfg.withDefaults(), logger: logger}
}

// Ensure creates the collection and its vector index when missing, then
// loads it for search.
func (c *Collection) Ensure(ctx context.Context) error {
	if c.cfg.Dimension <= 0 {
		return errors.NewValidationError("invalid milvus collection", []errors.FieldViolation{
			{Field: "dimension", Message: "must be > 0"},
		})
	}
	mc := c.client.API()
	has, err := mc.HasCollection(ctx, c.cfg.Name)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to check collection")
	}
	if !has {
		if err := mc.CreateCollection(ctx, DocumentSchema(c.cfg), c.cfg.ShardsNum); err != nil {
			return errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to create collection")
		}
		idx, err := entity.NewIndexIvfFlat(c.cfg.MetricType, c.cfg.NList)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeValidation, "invalid vector index parameters")
		}
		if err := mc.CreateIndex(ctx, c.cfg.Name, c.cfg.VectorField, idx, false); err != nil {
			return errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to create vector index")
		}
		c.logger.Info("milvus collection created",
			logging.String("collection", c.cfg.Name),
			logging.Int("dimension", c.cfg.Dimension))
	}
	if err := mc.LoadCollection(ctx, c.cfg.Name, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to load collection")
	}
	return nil
}

// Upsert embeds every document and writes it keyed by its DocumentKey. An
// embedding failure aborts the whole batch before anything is written.
func (c *Collection) Upsert(ctx context.Context, docs []priorart.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	vectors := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.EmbedConcurrency)
	for i, d := range docs {
		g.Go(func() error {
			v, err := c.embedder.Embed(gctx, d.Text())
			if err != nil {
				return err
			}
			if len(v) != c.cfg.Dimension {
				return errors.New(errors.ErrCodeEmbeddingUnavailable, "embedding has wrong dimension").
					WithDetail(strconv.Itoa(len(v)) + " != " + strconv.Itoa(c.cfg.Dimension))
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if _, err := c.client.API().Upsert(ctx, c.cfg.Name, "", documentColumns(docs, vectors, c.cfg)...); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSearchUnavailable, "milvus upsert failed")
	}
	c.logger.Info("documents upserted", logging.String("collection", c.cfg.Name), logging.Int("count", len(docs)))
	return len(docs), nil
}

func documentColumns(docs []priorart.Document, vectors [][]float32, cfg CollectionConfig) []entity.Column {
	n := len(docs)
	str := map[string][]string{}
	ints := map[string][]int64{}
	for _, name := range []string{fieldPK, fieldDocType, fieldIdentifier, fieldTitle, fieldAbstract, fieldAssignee, fieldInventors, fieldCountry, fieldURL} {
		str[name] = make([]string, n)
	}
	for _, name := range []string{fieldPublicationTS, fieldFamilySize, fieldForwardCitations, fieldRecentCitations} {
		ints[name] = make([]int64, n)
	}
	for i, d := range docs {
		str[fieldPK][i] = d.Key().String()
		str[fieldDocType][i] = string(d.Type)
		str[fieldIdentifier][i] = d.Identifier
		str[fieldTitle][i] = d.Title
		str[fieldAbstract][i] = d.Abstract
		str[fieldAssignee][i] = d.SourceOrAssignee
		str[fieldInventors][i] = strings.Join(d.AuthorsOrInventors, inventorSeparator)
		str[fieldCountry][i] = d.Country
		str[fieldURL][i] = d.URL
		ints[fieldPublicationTS][i] = d.Date.Unix()
		ints[fieldFamilySize][i] = int64(d.FamilySize)
		ints[fieldForwardCitations][i] = int64(d.ForwardCitations)
		ints[fieldRecentCitations][i] = int64(d.RecentCitations)
	}

	cols := make([]entity.Column, 0, len(str)+len(ints)+1)
	for _, f := range DocumentSchema(cfg).Fields {
		switch f.DataType {
		case entity.FieldTypeVarChar:
			vals := str[f.Name]
			for i := range vals {
				vals[i] = truncateBytes(vals[i], varcharLimits[f.Name])
			}
			cols = append(cols, entity.NewColumnVarChar(f.Name, vals))
		case entity.FieldTypeInt64:
			cols = append(cols, entity.NewColumnInt64(f.Name, ints[f.Name]))
		case entity.FieldTypeFloatVector:
			cols = append(cols, entity.NewColumnFloatVector(f.Name, cfg.Dimension, vectors))
		}
	}
	return cols
}

// truncateBytes cuts s to at most limit bytes without splitting a rune.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
