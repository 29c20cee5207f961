// Package config defines all configuration structures for PriorArt-Intelligence.
// No I/O or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
)

// Server

// ServerConfig groups the listeners exposed by cmd/apiserver.
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
	GRPC GRPCConfig `mapstructure:"grpc"`
}

// HTTPConfig holds HTTP server tunables.
type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	// RateLimitRPS is the sustained per-owner request rate. Zero disables
	// rate limiting.
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", h.Host, h.Port) }

// GRPCConfig holds the gRPC health listener. Port 0 disables it.
type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

// Database

// DatabaseConfig groups the stores.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"dbname"`
	SSLMode          string        `mapstructure:"sslmode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	// StatementTimeout and LockTimeout are sent as session parameters.
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

// DSN renders a lib/pq URL connection string.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.DBName,
	}
	if p.User != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	q := u.Query()
	q.Set("sslmode", p.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisConfig holds Redis connection parameters. An empty Addr disables Redis:
// per-alert locking falls back to an in-process mutex and status reads go
// straight to Postgres.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// Neo4jConfig holds graph connection parameters. An empty URI disables the
// landscape projection.
type Neo4jConfig struct {
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	Database              string        `mapstructure:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
}

func (n Neo4jConfig) Enabled() bool { return n.URI != "" }

// Search

// SearchConfig groups the candidate sources. At least one must be enabled for
// server processes.
type SearchConfig struct {
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Milvus     MilvusConfig     `mapstructure:"milvus"`
}

type OpenSearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	Username           string   `mapstructure:"username"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	Index              string   `mapstructure:"index"`
	MaxResults         int      `mapstructure:"max_results"`
}

func (o OpenSearchConfig) Enabled() bool { return len(o.Addresses) > 0 }

type MilvusConfig struct {
	Address     string `mapstructure:"address"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"db_name"`
	Collection  string `mapstructure:"collection"`
	VectorField string `mapstructure:"vector_field"`
	MetricType  string `mapstructure:"metric_type"`
	TopK        int    `mapstructure:"top_k"`
	NProbe      int    `mapstructure:"nprobe"`
}

func (m MilvusConfig) Enabled() bool { return m.Address != "" }

// Messaging & storage

type MessagingConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig holds producer and consumer parameters. No brokers disables
// event publication; notifications then stay in the outbox.
type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	ClientID      string        `mapstructure:"client_id"`
	BatchSize     int           `mapstructure:"batch_size"`
	BatchTimeout  time.Duration `mapstructure:"batch_timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RequiredAcks  int           `mapstructure:"required_acks"`
	Compression   string        `mapstructure:"compression"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	DLQEnabled    bool          `mapstructure:"dlq_enabled"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type StorageConfig struct {
	MinIO MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig configures the result archive. An empty Endpoint disables it.
type MinIOConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	ArchivePrefix string `mapstructure:"archive_prefix"`
}

func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" }

// Engine

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is "http" (OpenAI-compatible /embeddings) or "hashing".
	Provider  string        `mapstructure:"provider"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Dimension int           `mapstructure:"dimension"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EngineConfig tunes the similarity engine and its collaborators.
type EngineConfig struct {
	EmbedConcurrency int           `mapstructure:"embed_concurrency"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay    time.Duration `mapstructure:"retry_max_delay"`
	// MarketTablePath optionally overrides the embedded market domain table.
	// The file is watched and reloaded on change.
	MarketTablePath string `mapstructure:"market_table_path"`
}

// AnalysisConfig tunes the job coordinator.
type AnalysisConfig struct {
	// Dispatcher is "local" (in-process pool) or "kafka".
	Dispatcher       string        `mapstructure:"dispatcher"`
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	JobTTL           time.Duration `mapstructure:"job_ttl"`
	CandidateLimit   int           `mapstructure:"candidate_limit"`
	LookbackDays     int           `mapstructure:"lookback_days"`
	StatusCacheTTL   time.Duration `mapstructure:"status_cache_ttl"`
	TerminalCacheTTL time.Duration `mapstructure:"terminal_cache_ttl"`
	CallerTimeout    time.Duration `mapstructure:"caller_timeout"`
}

// AlertingConfig tunes the alert scheduler.
type AlertingConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Schedule        string        `mapstructure:"schedule"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxResults      int           `mapstructure:"max_results"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

// Monitoring

type MonitoringConfig struct {
	Log     logging.LogConfig `mapstructure:"log"`
	Metrics MetricsConfig     `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
	// WorkerPort serves /metrics, /healthz and /readyz from cmd/worker.
	WorkerPort int `mapstructure:"worker_port"`
}

// Root

// Config is the root configuration structure. Every component reads its
// settings from the relevant sub-struct.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Search     SearchConfig     `mapstructure:"search"`
	Messaging  MessagingConfig  `mapstructure:"messaging"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// Validate performs semantic validation of a fully populated Config and
// returns the first error encountered.
func (c *Config) Validate() error {
	// Server
	if c.Server.HTTP.Port < 1 || c.Server.HTTP.Port > 65535 {
		return fmt.Errorf("config: server.http.port %d is out of range [1, 65535]", c.Server.HTTP.Port)
	}
	if c.Server.GRPC.Port < 0 || c.Server.GRPC.Port > 65535 {
		return fmt.Errorf("config: server.grpc.port %d is out of range [0, 65535]", c.Server.GRPC.Port)
	}
	if c.Server.GRPC.Port != 0 && c.Server.GRPC.Port == c.Server.HTTP.Port {
		return fmt.Errorf("config: server.grpc.port must differ from server.http.port")
	}

	// Postgres
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("config: database.postgres.host is required")
	}
	if c.Database.Postgres.Port < 1 || c.Database.Postgres.Port > 65535 {
		return fmt.Errorf("config: database.postgres.port %d is out of range [1, 65535]", c.Database.Postgres.Port)
	}
	if c.Database.Postgres.DBName == "" {
		return fmt.Errorf("config: database.postgres.dbname is required")
	}
	if c.Database.Postgres.MaxOpenConns < 1 {
		return fmt.Errorf("config: database.postgres.max_open_conns must be ≥ 1, got %d", c.Database.Postgres.MaxOpenConns)
	}

	// Redis
	if c.Database.Redis.DB < 0 {
		return fmt.Errorf("config: database.redis.db must be ≥ 0, got %d", c.Database.Redis.DB)
	}

	// Kafka
	if c.Messaging.Kafka.Enabled() && c.Messaging.Kafka.ConsumerGroup == "" {
		return fmt.Errorf("config: messaging.kafka.consumer_group is required when brokers are set")
	}

	// MinIO
	if c.Storage.MinIO.Enabled() && c.Storage.MinIO.Bucket == "" {
		return fmt.Errorf("config: storage.minio.bucket is required when endpoint is set")
	}

	// Embedding
	switch c.Embedding.Provider {
	case "hashing":
	case "http":
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("config: embedding.base_url is required for the http provider")
		}
	default:
		return fmt.Errorf("config: embedding.provider %q is invalid; expected http|hashing", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("config: embedding.dimension must be ≥ 1, got %d", c.Embedding.Dimension)
	}

	// Engine
	if c.Engine.EmbedConcurrency < 1 {
		return fmt.Errorf("config: engine.embed_concurrency must be ≥ 1, got %d", c.Engine.EmbedConcurrency)
	}
	if c.Engine.MaxRetries < 0 || c.Engine.MaxRetries > 2 {
		return fmt.Errorf("config: engine.max_retries must be in [0, 2], got %d", c.Engine.MaxRetries)
	}

	// Analysis
	switch c.Analysis.Dispatcher {
	case "local":
	case "kafka":
		if !c.Messaging.Kafka.Enabled() {
			return fmt.Errorf("config: analysis.dispatcher kafka requires messaging.kafka.brokers")
		}
	default:
		return fmt.Errorf("config: analysis.dispatcher %q is invalid; expected local|kafka", c.Analysis.Dispatcher)
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("config: analysis.workers must be ≥ 1, got %d", c.Analysis.Workers)
	}
	if c.Analysis.QueueSize < 1 {
		return fmt.Errorf("config: analysis.queue_size must be ≥ 1, got %d", c.Analysis.QueueSize)
	}
	if c.Analysis.JobTTL <= 0 {
		return fmt.Errorf("config: analysis.job_ttl must be positive")
	}

	// Alerting
	if c.Alerting.Schedule == "" {
		return fmt.Errorf("config: alerting.schedule is required")
	}
	if c.Alerting.BatchSize < 1 {
		return fmt.Errorf("config: alerting.batch_size must be ≥ 1, got %d", c.Alerting.BatchSize)
	}
	if c.Alerting.MaxResults < 1 {
		return fmt.Errorf("config: alerting.max_results must be ≥ 1, got %d", c.Alerting.MaxResults)
	}

	// Log
	switch c.Monitoring.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: monitoring.log.level %q is invalid; expected debug|info|warn|error", c.Monitoring.Log.Level)
	}
	switch c.Monitoring.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: monitoring.log.format %q is invalid; expected json|console", c.Monitoring.Log.Format)
	}

	return nil
}
