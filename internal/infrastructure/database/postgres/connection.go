// Package postgres owns the PostgreSQL connection pool and the embedded schema
// migrations for analysis jobs, alerts, seen sets and notifications.
package postgres

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/turtacn/PriorArt-Intelligence/internal/config"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// Pool and session defaults applied when the configuration leaves them zero.
const (
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 10
	defaultConnMaxLifetime  = 30 * time.Minute
	defaultConnMaxIdleTime  = 5 * time.Minute
	defaultStatementTimeout = 30 * time.Second
	defaultLockTimeout      = 10 * time.Second
	pingTimeout             = 5 * time.Second
)

// sqlOpen is swapped in tests.
var sqlOpen = func(driverName, dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// Connection manages the PostgreSQL connection pool.
type Connection struct {
	db     *sql.DB
	cfg    config.PostgresConfig
	logger logging.Logger
	once   sync.Once
}

// NewConnection opens the pool and verifies it with a ping.
func NewConnection(cfg config.PostgresConfig, log logging.Logger) (*Connection, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}

	db, err := sqlOpen("postgres", BuildDSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open database connection")
	}
	configurePool(db, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "database connection failed")
	}

	log.Info("connected to PostgreSQL",
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
		logging.String("database", cfg.DBName),
	)
	return &Connection{db: db, cfg: cfg, logger: log}, nil
}

// NewConnectionWithDB wraps an existing pool; used by tests.
func NewConnectionWithDB(db *sql.DB, log logging.Logger) *Connection {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Connection{db: db, logger: log}
}

func (c *Connection) DB() *sql.DB { return c.db }

// DSN returns the connection string the pool was opened with.
func (c *Connection) DSN() string { return BuildDSN(c.cfg) }

// HealthCheck pings the database and warns when the pool runs hot.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "database health check failed")
	}
	stats := c.db.Stats()
	if stats.OpenConnections > 0 {
		usage := float64(stats.InUse) / float64(stats.OpenConnections)
		if usage > 0.8 {
			c.logger.Warn("high database pool usage",
				logging.Int("in_use", stats.InUse),
				logging.Int("open", stats.OpenConnections),
				logging.Float64("usage", usage),
			)
		}
	}
	return nil
}

// Close releases the pool. Subsequent calls are no-ops.
func (c *Connection) Close() error {
	var err error
	c.once.Do(func() {
		err = c.db.Close()
		if err != nil {
			c.logger.Error("failed to close PostgreSQL pool", logging.Err(err))
			return
		}
		c.logger.Info("closed PostgreSQL pool")
	})
	return err
}

func configurePool(db *sql.DB, cfg config.PostgresConfig) {
	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, defaultMaxOpenConns))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, defaultMaxIdleConns))
	db.SetConnMaxLifetime(orDefault(cfg.ConnMaxLifetime, defaultConnMaxLifetime))
	db.SetConnMaxIdleTime(orDefault(cfg.ConnMaxIdleTime, defaultConnMaxIdleTime))
}

func orDefault[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// BuildDSN extends the configured URL with session timeouts in milliseconds.
func BuildDSN(cfg config.PostgresConfig) string {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	u, err := url.Parse(cfg.DSN())
	if err != nil {
		return cfg.DSN()
	}
	q := u.Query()
	q.Set("statement_timeout", strconv.FormatInt(orDefault(cfg.StatementTimeout, defaultStatementTimeout).Milliseconds(), 10))
	q.Set("lock_timeout", strconv.FormatInt(orDefault(cfg.LockTimeout, defaultLockTimeout).Milliseconds(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}
