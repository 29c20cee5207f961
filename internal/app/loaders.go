package app

import (
	"context"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/multierr"

	"github.com/turtacn/PriorArt-Intelligence/internal/config"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/embedding"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/search/milvus"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/search/opensearch"
)

// LoadResult counts the documents one backend accepted and rejected.
type LoadResult struct {
	Loaded int
	Failed int
}

// DocumentLoader writes canonical documents into one search backend,
// creating its index or collection first when missing.
type DocumentLoader interface {
	Name() string
	Load(ctx context.Context, docs []priorart.Document) (LoadResult, error)
}

type openSearchLoader struct {
	indexer *opensearch.Indexer
	logger  logging.Logger
}

func (l *openSearchLoader) Name() string { return "opensearch" }

func (l *openSearchLoader) Load(ctx context.Context, docs []priorart.Document) (LoadResult, error) {
	if err := l.indexer.EnsureIndex(ctx); err != nil {
		return LoadResult{}, err
	}
	res, err := l.indexer.IndexDocuments(ctx, docs)
	if res == nil {
		return LoadResult{}, err
	}
	for _, e := range res.Errors {
		l.logger.Warn("document rejected by index",
			logging.String("id", e.DocID),
			logging.String("type", e.Type),
			logging.String("reason", e.Reason))
	}
	return LoadResult{Loaded: res.Indexed, Failed: res.Failed}, err
}

type milvusLoader struct {
	collection *milvus.Collection
}

func (l *milvusLoader) Name() string { return "milvus" }

func (l *milvusLoader) Load(ctx context.Context, docs []priorart.Document) (LoadResult, error) {
	if err := l.collection.Ensure(ctx); err != nil {
		return LoadResult{}, err
	}
	n, err := l.collection.Upsert(ctx, docs)
	if err != nil {
		return LoadResult{Failed: len(docs)}, err
	}
	return LoadResult{Loaded: n}, nil
}

// NewDocumentLoaders connects to every configured search backend. The
// returned close function releases the connections.
func NewDocumentLoaders(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ []DocumentLoader, closeFn func() error, err error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	var (
		loaders []DocumentLoader
		closers []func() error
	)
	closeFn = func() error {
		var err error
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
		return err
	}
	defer func() {
		if err != nil {
			_ = closeFn()
		}
	}()

	if oc := cfg.Search.OpenSearch; oc.Enabled() {
		client, err := opensearch.NewClient(opensearch.ClientConfig{
			Addresses:          oc.Addresses,
			Username:           oc.Username,
			Password:           oc.Password,
			InsecureSkipVerify: oc.InsecureSkipVerify,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		loaders = append(loaders, &openSearchLoader{
			indexer: opensearch.NewIndexer(client, oc.Index, logger),
			logger:  logger,
		})
	}

	if mv := cfg.Search.Milvus; mv.Enabled() {
		embedder, err := embedding.NewFromConfig(cfg.Embedding, logger)
		if err != nil {
			return nil, nil, err
		}
		client, err := milvus.NewClient(ctx, milvus.ClientConfig{
			Address:  mv.Address,
			Username: mv.Username,
			Password: mv.Password,
			DBName:   mv.DBName,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, client.Close)
		dim := cfg.Embedding.Dimension
		if dim <= 0 {
			dim = embedding.DefaultHashingDimension
		}
		loaders = append(loaders, &milvusLoader{
			collection: milvus.NewCollection(client, embedder, milvus.CollectionConfig{
				Name:             mv.Collection,
				VectorField:      mv.VectorField,
				Dimension:        dim,
				MetricType:       entity.MetricType(mv.MetricType),
				EmbedConcurrency: cfg.Engine.EmbedConcurrency,
			}, logger),
		})
	}
	return loaders, closeFn, nil
}
