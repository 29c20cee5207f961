// Package opensearch is the lexical side of candidate retrieval: a thin
// client, a CandidateSource that turns a research profile into a filtered
// multi_match query, and an Indexer that loads canonical documents.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

const (
	DefaultIndex      = "priorart-documents"
	DefaultMaxResults = 100
)

// ClientConfig holds the connection settings.
type ClientConfig struct {
	Addresses          []string
	Username           string
	Password           string
	InsecureSkipVerify bool
	MaxRetries         int
	RetryBackoff       time.Duration
	RequestTimeout     time.Duration
}

// Client wraps the OpenSearch API client and tracks cluster reachability.
type Client struct {
	client  *opensearch.Client
	config  ClientConfig
	logger  logging.Logger
	healthy atomic.Bool
}

// NewClient builds the client and pings the cluster once.
func NewClient(cfg ClientConfig, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  func(attempt int) time.Duration { return time.Duration(attempt) * cfg.RetryBackoff },
		RetryOnStatus: []int{429, 502, 503, 504},
		Transport:     transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchUnavailable, "failed to create opensearch client")
	}

	c := &Client{client: client, config: cfg, logger: logger}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Ping checks the cluster and records the outcome for IsHealthy.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("opensearch ping failed", logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeSearchUnavailable, "opensearch unreachable")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("opensearch ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.New(errors.ErrCodeSearchUnavailable, "opensearch unhealthy").
			WithDetail(resp.Status())
	}
	c.healthy.Store(true)
	return nil
}

func (c *Client) IsHealthy() bool { return c.healthy.Load() }

// API exposes the underlying client to the searcher and indexer.
func (c *Client) API() *opensearch.Client { return c.client }

// ValidateConfig rejects settings the client cannot start with.
func ValidateConfig(cfg ClientConfig) error {
	var v []errors.FieldViolation
	if len(cfg.Addresses) == 0 {
		v = append(v, errors.FieldViolation{Field: "addresses", Message: "at least one address is required"})
	}
	if cfg.MaxRetries < 0 {
		v = append(v, errors.FieldViolation{Field: "max_retries", Message: "must be >= 0"})
	}
	if cfg.RequestTimeout < 0 {
		v = append(v, errors.FieldViolation{Field: "request_timeout", Message: "must be >= 0"})
	}
	if len(v) > 0 {
		return errors.NewValidationError("invalid opensearch configuration", v)
	}
	return nil
}
