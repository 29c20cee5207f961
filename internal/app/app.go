// Package app builds the service graph shared by the API server, the worker
// and the CLI's maintenance commands from one Config.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/multierr"

	"github.com/turtacn/PriorArt-Intelligence/internal/application/alerting"
	"github.com/turtacn/PriorArt-Intelligence/internal/application/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/application/scoring"
	"github.com/turtacn/PriorArt-Intelligence/internal/application/similarity"
	"github.com/turtacn/PriorArt-Intelligence/internal/config"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/database/neo4j"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/embedding"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/search/milvus"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/search/opensearch"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Check is a named readiness probe of one backing service.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// App holds the wired services. Optional collaborators are nil when their
// backing service is not configured.
type App struct {
	Config  *config.Config
	Logger  logging.Logger
	Metrics *prometheus.AppMetrics

	Coordinator *analysis.Coordinator
	Alerts      alerting.Service
	Scheduler   *alerting.Scheduler
	Producer    *kafka.Producer
	Publisher   *kafka.EventPublisher
	Redis       *redis.Client

	metricsHandler http.Handler
	local          *analysis.LocalDispatcher
	checks         []Check
	closers        []func() error
}

// New connects every configured backend and wires the application services.
// ctx bounds the connection attempts and the market table watch. source
// names the publishing service in event envelopes.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger, source string) (_ *App, err error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.closeAll()
		}
	}()

	if cfg.Monitoring.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Monitoring.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create metrics collector")
		}
		a.Metrics = prometheus.NewAppMetrics(collector)
		a.metricsHandler = collector.Handler()
	}

	conn, err := postgres.NewConnection(cfg.Database.Postgres, logger)
	if err != nil {
		return nil, err
	}
	a.addCloser(conn.Close)
	a.addCheck("postgres", conn.HealthCheck)

	var (
		locker alerting.Locker
		cache  analysis.StatusCache
	)
	if cfg.Database.Redis.Enabled() {
		rc := cfg.Database.Redis
		client, err := redis.NewClient(&redis.RedisConfig{
			Addr:         rc.Addr,
			Password:     rc.Password,
			DB:           rc.DB,
			PoolSize:     rc.PoolSize,
			MinIdleConns: rc.MinIdleConns,
			DialTimeout:  rc.DialTimeout,
			ReadTimeout:  rc.ReadTimeout,
			WriteTimeout: rc.WriteTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.Redis = client
		a.addCloser(client.Close)
		a.addCheck("redis", client.Ping)
		locker = redis.NewKeyedLocker(client, logger)
		cache = redis.NewRedisCache(client, logger,
			redis.WithPrefix(rc.KeyPrefix+"job:"),
			redis.WithMetrics("job_status", a.Metrics))
	}

	if cfg.Database.Postgres.AutoMigrate {
		if err := a.migrate(ctx, conn); err != nil {
			return nil, err
		}
	}

	policy := similarity.RetryPolicy{
		MaxRetries: cfg.Engine.MaxRetries,
		BaseDelay:  cfg.Engine.RetryBaseDelay,
		MaxDelay:   cfg.Engine.RetryMaxDelay,
	}
	retryOpts := []similarity.RetryOption{similarity.RetryLogger(logger), similarity.RetryMetrics(a.Metrics)}

	base, err := embedding.NewFromConfig(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	embedder := similarity.NewRetryingEmbedder(base, policy, retryOpts...)

	sources, err := a.candidateSources(ctx, embedder, policy, retryOpts)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		logger.Warn("no candidate source configured, analyses and alert passes will fail")
	}
	candidates := similarity.NewMultiSource(logger, a.Metrics, sources...)

	engine := similarity.NewEngine(embedder,
		similarity.WithConcurrency(cfg.Engine.EmbedConcurrency),
		similarity.WithLogger(logger),
		similarity.WithMetrics(a.Metrics))

	market, err := a.marketTable(ctx)
	if err != nil {
		return nil, err
	}
	pipeline := scoring.NewPipeline(market)

	opts := []analysis.Option{analysis.WithMetrics(a.Metrics)}
	if cache != nil {
		opts = append(opts, analysis.WithStatusCache(cache))
	}

	if cfg.Messaging.Kafka.Enabled() {
		kc := cfg.Messaging.Kafka
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      kc.Brokers,
			ClientID:     kc.ClientID,
			RequiredAcks: kc.RequiredAcks,
			MaxAttempts:  kc.MaxAttempts,
			BatchSize:    kc.BatchSize,
			BatchTimeout: kc.BatchTimeout,
			Compression:  kc.Compression,
		}, logger, a.Metrics)
		if err != nil {
			return nil, err
		}
		a.Producer = producer
		a.Publisher = kafka.NewEventPublisher(producer, source)
		a.addCloser(producer.Close)
		opts = append(opts, analysis.WithPublisher(a.Publisher))
	}

	if cfg.Storage.MinIO.Enabled() {
		mc := cfg.Storage.MinIO
		client, err := minio.NewClient(ctx, minio.Config{
			Endpoint:      mc.Endpoint,
			AccessKey:     mc.AccessKey,
			SecretKey:     mc.SecretKey,
			UseSSL:        mc.UseSSL,
			Region:        mc.Region,
			Bucket:        mc.Bucket,
			ArchivePrefix: mc.ArchivePrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.addCheck("minio", client.HealthCheck)
		opts = append(opts, analysis.WithArchive(minio.NewResultArchive(client)))
	}

	if cfg.Database.Neo4j.Enabled() {
		nc := cfg.Database.Neo4j
		driver, err := neo4j.NewDriver(ctx, neo4j.Config{
			URI:                   nc.URI,
			Username:              nc.User,
			Password:              nc.Password,
			Database:              nc.Database,
			MaxConnectionPoolSize: nc.MaxConnectionPoolSize,
			ConnectionTimeout:     nc.ConnectionTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.addCloser(driver.Close)
		a.addCheck("neo4j", driver.HealthCheck)
		projector := neo4j.NewLandscapeProjector(driver, logger)
		if err := projector.EnsureConstraints(ctx); err != nil {
			logger.Warn("neo4j constraints not created", logging.Err(err))
		}
		opts = append(opts, analysis.WithProjector(projector))
	}

	jobs := repositories.NewJobRepo(conn, logger)
	alerts := repositories.NewAlertRepo(conn, logger)
	notifications := repositories.NewNotificationRepo(conn, logger)

	ac := cfg.Analysis
	a.Coordinator = analysis.NewCoordinator(jobs, candidates, engine, pipeline, analysis.Config{
		JobTTL:           ac.JobTTL,
		CandidateLimit:   ac.CandidateLimit,
		LookbackDays:     ac.LookbackDays,
		StatusCacheTTL:   ac.StatusCacheTTL,
		TerminalCacheTTL: ac.TerminalCacheTTL,
	}, logger, opts...)

	a.Alerts = alerting.NewService(alerts, notifications, logger)

	schedOpts := []alerting.SchedulerOption{
		alerting.WithCleaner(a.Coordinator),
		alerting.WithMetrics(a.Metrics),
	}
	if a.Publisher != nil {
		schedOpts = append(schedOpts, alerting.WithPublisher(a.Publisher))
	}
	al := cfg.Alerting
	a.Scheduler = alerting.NewScheduler(alerts, notifications, candidates, engine, locker, alerting.SchedulerConfig{
		Schedule:        al.Schedule,
		CleanupSchedule: al.CleanupSchedule,
		BatchSize:       al.BatchSize,
		MaxResults:      al.MaxResults,
		LockTTL:         al.LockTTL,
	}, logger, schedOpts...)

	return a, nil
}

func (a *App) candidateSources(ctx context.Context, embedder priorart.Embedder, policy similarity.RetryPolicy, retryOpts []similarity.RetryOption) ([]similarity.NamedSource, error) {
	var sources []similarity.NamedSource

	if oc := a.Config.Search.OpenSearch; oc.Enabled() {
		client, err := opensearch.NewClient(opensearch.ClientConfig{
			Addresses:          oc.Addresses,
			Username:           oc.Username,
			Password:           oc.Password,
			InsecureSkipVerify: oc.InsecureSkipVerify,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.addCheck("opensearch", client.Ping)
		src := opensearch.NewCandidateSource(client, opensearch.SourceConfig{
			Index:      oc.Index,
			MaxResults: oc.MaxResults,
		}, a.Logger, a.Metrics)
		sources = append(sources, similarity.NamedSource{
			Name:   "opensearch",
			Source: similarity.NewRetryingSource("opensearch", src, policy, retryOpts...),
		})
	}

	if mv := a.Config.Search.Milvus; mv.Enabled() {
		client, err := milvus.NewClient(ctx, milvus.ClientConfig{
			Address:  mv.Address,
			Username: mv.Username,
			Password: mv.Password,
			DBName:   mv.DBName,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.addCloser(client.Close)
		a.addCheck("milvus", client.CheckHealth)
		src := milvus.NewVectorSource(client, embedder, milvus.SourceConfig{
			Collection:  mv.Collection,
			VectorField: mv.VectorField,
			MetricType:  entity.MetricType(mv.MetricType),
			TopK:        mv.TopK,
			NProbe:      mv.NProbe,
		}, a.Logger, a.Metrics)
		sources = append(sources, similarity.NamedSource{
			Name:   "milvus",
			Source: similarity.NewRetryingSource("milvus", src, policy, retryOpts...),
		})
	}
	return sources, nil
}

// marketTable loads the override table when one is configured and keeps it
// in sync with the file until ctx ends.
func (a *App) marketTable(ctx context.Context) (*scoring.MarketTableStore, error) {
	path := a.Config.Engine.MarketTablePath
	if path == "" {
		return scoring.NewMarketTableStore(scoring.DefaultMarketTable()), nil
	}
	table, err := scoring.LoadMarketTable(path)
	if err != nil {
		return nil, err
	}
	store := scoring.NewMarketTableStore(table)
	if err := scoring.WatchMarketTable(ctx, path, store, a.Logger, nil); err != nil {
		a.Logger.Warn("market table hot reload disabled", logging.String("path", path), logging.Err(err))
	}
	return store, nil
}

// migrate applies pending migrations, serialised across replicas by a Redis
// mutex when Redis is configured.
func (a *App) migrate(ctx context.Context, conn *postgres.Connection) error {
	if a.Redis != nil {
		mu := redis.NewKeyedLocker(a.Redis, a.Logger).NewMutex("migrate", redis.WithLockTTL(2*time.Minute))
		if err := mu.Lock(ctx); err != nil {
			return err
		}
		defer func() {
			if err := mu.Unlock(context.WithoutCancel(ctx)); err != nil {
				a.Logger.Warn("failed to release migration lock", logging.Err(err))
			}
		}()
	}
	return postgres.NewMigrator(conn.DSN(), a.Logger).Up()
}

// UseConfiguredDispatcher attaches the dispatcher named by
// analysis.dispatcher. The kafka dispatcher requires configured brokers.
func (a *App) UseConfiguredDispatcher() error {
	switch a.Config.Analysis.Dispatcher {
	case "kafka":
		if a.Publisher == nil {
			return errors.NewValidationError("invalid analysis configuration", []errors.FieldViolation{
				{Field: "analysis.dispatcher", Message: "kafka requires messaging.kafka.brokers"},
			})
		}
		a.Coordinator.SetDispatcher(analysis.NewKafkaDispatcher(a.Publisher))
	default:
		a.local = analysis.NewLocalDispatcher(a.Coordinator,
			a.Config.Analysis.Workers, a.Config.Analysis.QueueSize, a.Logger, a.Metrics)
		a.Coordinator.SetDispatcher(a.local)
	}
	a.Logger.Info("analysis dispatcher attached", logging.String("dispatcher", a.Config.Analysis.Dispatcher))
	return nil
}

// Checks returns the readiness probes of every connected backend.
func (a *App) Checks() []Check { return a.checks }

// MetricsHandler serves the registry, or nil when metrics are disabled.
func (a *App) MetricsHandler() http.Handler { return a.metricsHandler }

// Close drains the local dispatcher within ctx, then closes every backend
// connection in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.local != nil {
		err = multierr.Append(err, a.local.Stop(ctx))
	}
	return multierr.Append(err, a.closeAll())
}

func (a *App) closeAll() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

func (a *App) addCloser(fn func() error) { a.closers = append(a.closers, fn) }

func (a *App) addCheck(name string, fn func(ctx context.Context) error) {
	a.checks = append(a.checks, Check{Name: name, Fn: fn})
}
