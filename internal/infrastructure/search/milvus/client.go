// Package milvus is the dense side of candidate retrieval. Documents are
// stored with their embedding; a profile is embedded once and the nearest
// neighbours within the lookback window come back as candidates.
package milvus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// ClientFactory creates the SDK client. Tests replace it.
type ClientFactory func(ctx context.Context, conf client.Config) (client.Client, error)

var newMilvusClient ClientFactory = client.NewClient

// ClientConfig holds the connection settings.
type ClientConfig struct {
	Address             string
	Username            string
	Password            string
	DBName              string
	ConnectTimeout      time.Duration
	HealthCheckInterval time.Duration
	KeepAliveTime       time.Duration
	KeepAliveTimeout    time.Duration
}

// Client owns the SDK connection and reconnects after repeated health
// check failures.
type Client struct {
	mc      client.Client
	config  ClientConfig
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
	mu      sync.RWMutex
}

func NewClient(ctx context.Context, cfg ClientConfig, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.DBName == "" {
		cfg.DBName = "default"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	if cfg.KeepAliveTime == 0 {
		cfg.KeepAliveTime = 60 * time.Second
	}
	if cfg.KeepAliveTimeout == 0 {
		cfg.KeepAliveTimeout = 20 * time.Second
	}

	mc, err := connect(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to connect to milvus")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c := &Client{mc: mc, config: cfg, logger: logger, cancel: cancel}
	if err := c.CheckHealth(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	go c.healthLoop(loopCtx)

	logger.Info("milvus client connected", logging.String("address", cfg.Address))
	return c, nil
}

func connect(ctx context.Context, cfg ClientConfig) (client.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	return newMilvusClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                cfg.KeepAliveTime,
				Timeout:             cfg.KeepAliveTimeout,
				PermitWithoutStream: true,
			}),
		},
	})
}

// CheckHealth probes the server and records the result for IsHealthy.
func (c *Client) CheckHealth(ctx context.Context) error {
	mc := c.API()
	if mc == nil {
		return errors.New(errors.ErrCodeSearchUnavailable, "milvus client closed")
	}
	state, err := mc.CheckHealth(ctx)
	if err == nil && state != nil && !state.IsHealthy {
		err = errors.New(errors.ErrCodeSearchUnavailable, "milvus reports unhealthy").
			WithDetail(strings.Join(state.Reasons, "; "))
	}
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("milvus health check failed", logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeSearchUnavailable, "milvus unhealthy")
	}
	c.healthy.Store(true)
	return nil
}

func (c *Client) IsHealthy() bool { return c.healthy.Load() }

// API returns the current SDK client.
func (c *Client) API() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mc
}

func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mc == nil {
		return nil
	}
	err := c.mc.Close()
	c.mc = nil
	return err
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.CheckHealth(ctx); err == nil {
				if failures > 0 {
					c.logger.Info("milvus recovered")
				}
				failures = 0
				continue
			}
			failures++
			if failures < 3 {
				continue
			}
			if err := c.reconnect(ctx); err != nil {
				c.logger.Error("milvus reconnect failed", logging.Err(err))
				continue
			}
			failures = 0
		}
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	mc, err := connect(ctx, c.config)
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.mc
	c.mc = mc
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.logger.Warn("milvus client reconnected")
	return nil
}

// ValidateConfig rejects settings the client cannot start with.
func ValidateConfig(cfg ClientConfig) error {
	var v []errors.FieldViolation
	if cfg.Address == "" {
		v = append(v, errors.FieldViolation{Field: "address", Message: "is required"})
	}
	if cfg.ConnectTimeout < 0 {
		v = append(v, errors.FieldViolation{Field: "connect_timeout", Message: "must be >= 0"})
	}
	if cfg.HealthCheckInterval < 0 {
		v = append(v, errors.FieldViolation{Field: "health_check_interval", Message: "must be >= 0"})
	}
	if len(v) > 0 {
		return errors.NewValidationError("invalid milvus configuration", v)
	}
	return nil
}
