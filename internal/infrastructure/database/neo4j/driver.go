// Package neo4j projects completed analyses into a graph of assignees,
// documents and the analyses that found them.
package neo4j

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

type Config struct {
	URI                   string
	Username              string
	Password              string
	Database              string
	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
}

// Result abstracts neo4j.ResultWithContext.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
	Consume(ctx context.Context) (neo4j.ResultSummary, error)
}

// Transaction abstracts neo4j.ManagedTransaction.
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// TransactionWork is a unit of work retried by the driver on transient
// failures.
type TransactionWork func(tx Transaction) (any, error)

// DriverInterface is what the graph repositories depend on.
type DriverInterface interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

type internalSession interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
	Close(ctx context.Context) error
}

type internalDriver interface {
	VerifyConnectivity(ctx context.Context) error
	NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession
	Close(ctx context.Context) error
}

type stdResult struct {
	res neo4j.ResultWithContext
}

func (r *stdResult) Next(ctx context.Context) bool { return r.res.Next(ctx) }
func (r *stdResult) Record() *neo4j.Record         { return r.res.Record() }
func (r *stdResult) Err() error                    { return r.res.Err() }
func (r *stdResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return r.res.Consume(ctx)
}

type stdTransaction struct {
	tx neo4j.ManagedTransaction
}

func (t *stdTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	res, err := t.tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return &stdResult{res: res}, nil
}

type stdSession struct {
	s neo4j.SessionWithContext
}

func (s *stdSession) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	return s.s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&stdTransaction{tx: tx})
	})
}

func (s *stdSession) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	return s.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&stdTransaction{tx: tx})
	})
}

func (s *stdSession) Close(ctx context.Context) error { return s.s.Close(ctx) }

type stdDriver struct {
	d neo4j.DriverWithContext
}

func (d *stdDriver) VerifyConnectivity(ctx context.Context) error { return d.d.VerifyConnectivity(ctx) }

func (d *stdDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) internalSession {
	return &stdSession{s: d.d.NewSession(ctx, config)}
}

func (d *stdDriver) Close(ctx context.Context) error { return d.d.Close(ctx) }

// Driver wraps the official driver with per-call sessions.
type Driver struct {
	driver internalDriver
	cfg    Config
	logger logging.Logger
	once   sync.Once
}

var _ DriverInterface = (*Driver)(nil)

func NewDriver(ctx context.Context, cfg Config, log logging.Logger) (*Driver, error) {
	if cfg.URI == "" {
		return nil, errors.NewValidationError("invalid neo4j configuration", []errors.FieldViolation{
			{Field: "uri", Message: "is required"},
		})
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = 50
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		c.MaxConnectionLifetime = time.Hour
		c.ConnectionAcquisitionTimeout = timeout
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create neo4j driver")
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to connect to neo4j")
	}

	log.Info("connected to neo4j", logging.String("uri", cfg.URI), logging.String("database", cfg.Database))
	return newDriver(&stdDriver{d: driver}, cfg, log), nil
}

func newDriver(d internalDriver, cfg Config, log logging.Logger) *Driver {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Driver{driver: d, cfg: cfg, logger: log}
}

func (d *Driver) session(ctx context.Context, mode neo4j.AccessMode) internalSession {
	db := d.cfg.Database
	if db == "" {
		db = "neo4j"
	}
	return d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: db, AccessMode: mode})
}

func (d *Driver) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	session := d.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, work)
	if err != nil {
		d.logger.Error("neo4j read transaction failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j read failed")
	}
	return result, nil
}

func (d *Driver) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	session := d.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, work)
	if err != nil {
		d.logger.Error("neo4j write transaction failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j write failed")
	}
	return result, nil
}

func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j connectivity check failed")
	}
	_, err := d.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, "RETURN 1 AS health", nil)
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

func (d *Driver) Close() error {
	var err error
	d.once.Do(func() {
		err = d.driver.Close(context.Background())
		if err != nil {
			d.logger.Error("failed to close neo4j driver", logging.Err(err))
		}
	})
	return err
}
