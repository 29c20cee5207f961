// Package minio archives completed analysis results as JSON objects.
package minio

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// ObjectAPI is the subset of *minio.Client the archive uses.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

var _ ObjectAPI = (*minio.Client)(nil)

// Config holds the connection and bucket settings.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Region        string
	Bucket        string
	ArchivePrefix string
	// RetentionDays expires archived objects; 0 keeps them forever.
	RetentionDays int
}

func applyDefaults(cfg *Config) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "priorart-results"
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "analyses"
	}
}

// Client owns the bucket the archive writes into.
type Client struct {
	api    ObjectAPI
	config Config
	logger logging.Logger
}

// NewClient connects, creates the bucket when missing and installs the
// retention rule.
func NewClient(ctx context.Context, cfg Config, log logging.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.NewValidationError("invalid minio configuration", []errors.FieldViolation{
			{Field: "endpoint", Message: "is required"},
		})
	}
	applyDefaults(&cfg)
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create minio client")
	}
	c := NewClientWithAPI(api, cfg, log)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("minio client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

func NewClientWithAPI(api ObjectAPI, cfg Config, log logging.Logger) *Client {
	applyDefaults(&cfg)
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Client{api: api, config: cfg, logger: log}
}

// EnsureBucket creates the bucket if needed. A lifecycle rule that cannot be
// installed is logged, not fatal.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket")
	}
	if !exists {
		if err := c.api.MakeBucket(ctx, c.config.Bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create bucket").WithDetail(c.config.Bucket)
		}
		c.logger.Info("bucket created", logging.String("bucket", c.config.Bucket))
	}

	if c.config.RetentionDays <= 0 {
		return nil
	}
	rules := lifecycle.NewConfiguration()
	rules.Rules = []lifecycle.Rule{{
		ID:         "archive-expiry",
		Status:     "Enabled",
		RuleFilter: lifecycle.Filter{Prefix: c.config.ArchivePrefix + "/"},
		Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(c.config.RetentionDays)},
	}}
	if err := c.api.SetBucketLifecycle(ctx, c.config.Bucket, rules); err != nil {
		c.logger.Warn("failed to set archive lifecycle", logging.String("bucket", c.config.Bucket), logging.Err(err))
	}
	return nil
}

// HealthCheck reports whether the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	ok, err := c.api.BucketExists(ctx, c.config.Bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "minio unreachable")
	}
	if !ok {
		return errors.New(errors.ErrCodeStorageError, "bucket missing").WithDetail(c.config.Bucket)
	}
	return nil
}

func (c *Client) Bucket() string { return c.config.Bucket }
