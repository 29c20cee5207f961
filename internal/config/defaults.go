package config

import "time"

// Default value constants

const (
	DefaultHTTPHost            = "0.0.0.0"
	DefaultHTTPPort            = 8080
	DefaultHTTPReadTimeout     = 15 * time.Second
	DefaultHTTPWriteTimeout    = 60 * time.Second
	DefaultHTTPIdleTimeout     = 120 * time.Second
	DefaultHTTPShutdownTimeout = 30 * time.Second
	DefaultHTTPMaxBodySize     = 1 << 20
	DefaultHTTPRateLimitBurst  = 40

	DefaultPostgresHost         = "localhost"
	DefaultPostgresPort         = 5432
	DefaultPostgresDBName       = "priorart"
	DefaultPostgresSSLMode      = "disable"
	DefaultPostgresMaxOpenConns = 25
	DefaultPostgresMaxIdleConns = 5
	DefaultPostgresConnLifetime = 30 * time.Minute

	DefaultRedisPoolSize  = 20
	DefaultRedisKeyPrefix = "priorart:"
	DefaultRedisTimeout   = 3 * time.Second

	DefaultNeo4jDatabase = "neo4j"
	DefaultNeo4jPoolSize = 50

	DefaultOpenSearchIndex      = "priorart-documents"
	DefaultOpenSearchMaxResults = 100

	DefaultMilvusCollection  = "priorart_documents"
	DefaultMilvusVectorField = "embedding"
	DefaultMilvusMetricType  = "IP"
	DefaultMilvusTopK        = 100
	DefaultMilvusNProbe      = 16

	DefaultKafkaConsumerGroup = "priorart-worker"
	DefaultKafkaClientID      = "priorart"
	DefaultKafkaBatchSize     = 100
	DefaultKafkaBatchTimeout  = 10 * time.Millisecond
	DefaultKafkaMaxAttempts   = 3
	DefaultKafkaRequiredAcks  = -1
	DefaultKafkaMaxRetries    = 3
	DefaultKafkaRetryBackoff  = time.Second

	DefaultMinIOBucket        = "priorart-results"
	DefaultMinIOArchivePrefix = "analyses/"

	DefaultEmbeddingProvider  = "hashing"
	DefaultEmbeddingDimension = 384
	DefaultEmbeddingTimeout   = 10 * time.Second

	DefaultEmbedConcurrency = 8
	DefaultMaxRetries       = 2
	DefaultRetryBaseDelay   = 200 * time.Millisecond
	DefaultRetryMaxDelay    = 2 * time.Second

	DefaultDispatcher       = "local"
	DefaultAnalysisWorkers  = 4
	DefaultQueueSize        = 64
	DefaultJobTTL           = 24 * time.Hour
	DefaultCandidateLimit   = 100
	DefaultStatusCacheTTL   = 5 * time.Second
	DefaultTerminalCacheTTL = 10 * time.Minute
	DefaultCallerTimeout    = 30 * time.Second

	DefaultAlertSchedule   = "@every 5m"
	DefaultCleanupSchedule = "@every 1h"
	DefaultAlertBatchSize  = 5
	DefaultAlertMaxResults = 20
	DefaultAlertLockTTL    = 2 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "priorart"
	DefaultMetricsPath      = "/metrics"
	DefaultWorkerPort       = 9091
)

// NewDefaultConfig returns a Config with every default applied. Postgres
// points at localhost and the hashing embedder is selected, so the result
// validates without external services being configured.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Explicit configuration always wins. It must run after unmarshalling and
// before Validate.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// Server
	h := &cfg.Server.HTTP
	if h.Host == "" {
		h.Host = DefaultHTTPHost
	}
	if h.Port == 0 {
		h.Port = DefaultHTTPPort
	}
	if h.ReadTimeout == 0 {
		h.ReadTimeout = DefaultHTTPReadTimeout
	}
	if h.WriteTimeout == 0 {
		h.WriteTimeout = DefaultHTTPWriteTimeout
	}
	if h.IdleTimeout == 0 {
		h.IdleTimeout = DefaultHTTPIdleTimeout
	}
	if h.ShutdownTimeout == 0 {
		h.ShutdownTimeout = DefaultHTTPShutdownTimeout
	}
	if h.MaxBodySize == 0 {
		h.MaxBodySize = DefaultHTTPMaxBodySize
	}
	if h.RateLimitRPS > 0 && h.RateLimitBurst == 0 {
		h.RateLimitBurst = DefaultHTTPRateLimitBurst
	}

	// Postgres
	pg := &cfg.Database.Postgres
	if pg.Host == "" {
		pg.Host = DefaultPostgresHost
	}
	if pg.Port == 0 {
		pg.Port = DefaultPostgresPort
	}
	if pg.DBName == "" {
		pg.DBName = DefaultPostgresDBName
	}
	if pg.SSLMode == "" {
		pg.SSLMode = DefaultPostgresSSLMode
	}
	if pg.MaxOpenConns == 0 {
		pg.MaxOpenConns = DefaultPostgresMaxOpenConns
	}
	if pg.MaxIdleConns == 0 {
		pg.MaxIdleConns = DefaultPostgresMaxIdleConns
	}
	if pg.ConnMaxLifetime == 0 {
		pg.ConnMaxLifetime = DefaultPostgresConnLifetime
	}

	// Redis
	// Addr stays empty unless configured; see RedisConfig.
	rd := &cfg.Database.Redis
	if rd.PoolSize == 0 {
		rd.PoolSize = DefaultRedisPoolSize
	}
	if rd.KeyPrefix == "" {
		rd.KeyPrefix = DefaultRedisKeyPrefix
	}
	if rd.DialTimeout == 0 {
		rd.DialTimeout = DefaultRedisTimeout
	}
	if rd.ReadTimeout == 0 {
		rd.ReadTimeout = DefaultRedisTimeout
	}
	if rd.WriteTimeout == 0 {
		rd.WriteTimeout = DefaultRedisTimeout
	}

	// Neo4j
	if cfg.Database.Neo4j.Database == "" {
		cfg.Database.Neo4j.Database = DefaultNeo4jDatabase
	}
	if cfg.Database.Neo4j.MaxConnectionPoolSize == 0 {
		cfg.Database.Neo4j.MaxConnectionPoolSize = DefaultNeo4jPoolSize
	}

	// Search
	if cfg.Search.OpenSearch.Index == "" {
		cfg.Search.OpenSearch.Index = DefaultOpenSearchIndex
	}
	if cfg.Search.OpenSearch.MaxResults == 0 {
		cfg.Search.OpenSearch.MaxResults = DefaultOpenSearchMaxResults
	}
	mv := &cfg.Search.Milvus
	if mv.Collection == "" {
		mv.Collection = DefaultMilvusCollection
	}
	if mv.VectorField == "" {
		mv.VectorField = DefaultMilvusVectorField
	}
	if mv.MetricType == "" {
		mv.MetricType = DefaultMilvusMetricType
	}
	if mv.TopK == 0 {
		mv.TopK = DefaultMilvusTopK
	}
	if mv.NProbe == 0 {
		mv.NProbe = DefaultMilvusNProbe
	}

	// Kafka
	k := &cfg.Messaging.Kafka
	if k.ConsumerGroup == "" {
		k.ConsumerGroup = DefaultKafkaConsumerGroup
	}
	if k.ClientID == "" {
		k.ClientID = DefaultKafkaClientID
	}
	if k.BatchSize == 0 {
		k.BatchSize = DefaultKafkaBatchSize
	}
	if k.BatchTimeout == 0 {
		k.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if k.MaxAttempts == 0 {
		k.MaxAttempts = DefaultKafkaMaxAttempts
	}
	if k.RequiredAcks == 0 {
		k.RequiredAcks = DefaultKafkaRequiredAcks
	}
	if k.MaxRetries == 0 {
		k.MaxRetries = DefaultKafkaMaxRetries
	}
	if k.RetryBackoff == 0 {
		k.RetryBackoff = DefaultKafkaRetryBackoff
	}

	// MinIO
	if cfg.Storage.MinIO.Bucket == "" {
		cfg.Storage.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.Storage.MinIO.ArchivePrefix == "" {
		cfg.Storage.MinIO.ArchivePrefix = DefaultMinIOArchivePrefix
	}

	// Embedding
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = DefaultEmbeddingProvider
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = DefaultEmbeddingDimension
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = DefaultEmbeddingTimeout
	}

	// Engine
	// MaxRetries 0 cannot be told apart from "unset"; it becomes the default.
	if cfg.Engine.EmbedConcurrency == 0 {
		cfg.Engine.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = DefaultMaxRetries
	}
	if cfg.Engine.RetryBaseDelay == 0 {
		cfg.Engine.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.Engine.RetryMaxDelay == 0 {
		cfg.Engine.RetryMaxDelay = DefaultRetryMaxDelay
	}

	// Analysis
	a := &cfg.Analysis
	if a.Dispatcher == "" {
		a.Dispatcher = DefaultDispatcher
	}
	if a.Workers == 0 {
		a.Workers = DefaultAnalysisWorkers
	}
	if a.QueueSize == 0 {
		a.QueueSize = DefaultQueueSize
	}
	if a.JobTTL == 0 {
		a.JobTTL = DefaultJobTTL
	}
	if a.CandidateLimit == 0 {
		a.CandidateLimit = DefaultCandidateLimit
	}
	if a.StatusCacheTTL == 0 {
		a.StatusCacheTTL = DefaultStatusCacheTTL
	}
	if a.TerminalCacheTTL == 0 {
		a.TerminalCacheTTL = DefaultTerminalCacheTTL
	}
	if a.CallerTimeout == 0 {
		a.CallerTimeout = DefaultCallerTimeout
	}

	// Alerting
	al := &cfg.Alerting
	if al.Schedule == "" {
		al.Schedule = DefaultAlertSchedule
	}
	if al.CleanupSchedule == "" {
		al.CleanupSchedule = DefaultCleanupSchedule
	}
	if al.BatchSize == 0 {
		al.BatchSize = DefaultAlertBatchSize
	}
	if al.MaxResults == 0 {
		al.MaxResults = DefaultAlertMaxResults
	}
	if al.LockTTL == 0 {
		al.LockTTL = DefaultAlertLockTTL
	}

	// Monitoring
	if cfg.Monitoring.Log.Level == "" {
		cfg.Monitoring.Log.Level = DefaultLogLevel
	}
	if cfg.Monitoring.Log.Format == "" {
		cfg.Monitoring.Log.Format = DefaultLogFormat
	}
	if cfg.Monitoring.Metrics.Namespace == "" {
		cfg.Monitoring.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Monitoring.Metrics.Path == "" {
		cfg.Monitoring.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Monitoring.Metrics.WorkerPort == 0 {
		cfg.Monitoring.Metrics.WorkerPort = DefaultWorkerPort
	}
}
