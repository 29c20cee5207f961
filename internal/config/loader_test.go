package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  http:
    port: 8081
  grpc:
    port: 9090
database:
  postgres:
    host: "pg.internal"
    user: "priorart"
    password: "secret"
  redis:
    addr: "localhost:6379"
search:
  opensearch:
    addresses: ["http://localhost:9200"]
messaging:
  kafka:
    brokers: ["localhost:9092"]
analysis:
  dispatcher: kafka
  job_ttl: 12h
alerting:
  enabled: true
  schedule: "@every 1m"
monitoring:
  log:
    level: debug
    format: console
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.HTTP.Port)
	assert.Equal(t, 9090, cfg.Server.GRPC.Port)
	assert.Equal(t, "pg.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Messaging.Kafka.Brokers)
	assert.Equal(t, "kafka", cfg.Analysis.Dispatcher)
	assert.Equal(t, 12*time.Hour, cfg.Analysis.JobTTL)
	assert.True(t, cfg.Alerting.Enabled)
	assert.Equal(t, "debug", cfg.Monitoring.Log.Level)
	// defaults fill the rest
	assert.Equal(t, DefaultPostgresPort, cfg.Database.Postgres.Port)
	assert.Equal(t, DefaultAlertBatchSize, cfg.Alerting.BatchSize)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, "embedding:\n  provider: magic\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PRIORART_DATABASE_POSTGRES_HOST", "env-host")
	t.Setenv("PRIORART_ALERTING_BATCH_SIZE", "7")

	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, "env-host", cfg.Database.Postgres.Host)
	assert.Equal(t, 7, cfg.Alerting.BatchSize)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("PRIORART_SERVER_HTTP_PORT", "9000")
	t.Setenv("PRIORART_DATABASE_REDIS_ADDR", "redis:6379")
	t.Setenv("PRIORART_ANALYSIS_CALLER_TIMEOUT", "45s")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.HTTP.Port)
	assert.Equal(t, "redis:6379", cfg.Database.Redis.Addr)
	assert.Equal(t, 45*time.Second, cfg.Analysis.CallerTimeout)
	assert.Equal(t, DefaultPostgresHost, cfg.Database.Postgres.Host)
}

func TestMustLoad(t *testing.T) {
	assert.NotPanics(t, func() { MustLoad(writeConfig(t, validConfigYAML)) })
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "nope.yaml")) })
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "nope.yaml"), func(*Config) {}, nil)
	assert.Error(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, validConfigYAML)

	var level atomic.Value
	require.NoError(t, Watch(path, func(c *Config) { level.Store(c.Monitoring.Log.Level) }, nil))

	updated := strings.Replace(validConfigYAML, "level: debug", "level: warn", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "warn"
	}, 5*time.Second, 50*time.Millisecond)
}
