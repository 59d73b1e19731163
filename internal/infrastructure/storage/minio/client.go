// Package minio stores checkpoints and validation reports in S3-compatible
// object storage.
package minio

import (
	"context"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client kgeval calls.  Tests substitute a mock.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Client wraps MinIOAPI with the report bucket and checkpoint cache settings.
type Client struct {
	api    MinIOAPI
	cfg    config.MinIOConfig
	logger logging.Logger

	mu      sync.Mutex
	ensured bool
}

// NewClient connects to cfg.Endpoint and verifies reachability.
func NewClient(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create minio client")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := api.ListBuckets(pingCtx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio").WithDetail(cfg.Endpoint)
	}

	log.Info("MinIO client connected", logging.String("endpoint", cfg.Endpoint), logging.Bool("ssl", cfg.UseSSL))
	return NewClientWithAPI(api, cfg, log), nil
}

// NewClientWithAPI wraps an existing API implementation.
func NewClientWithAPI(api MinIOAPI, cfg config.MinIOConfig, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Client{api: api, cfg: cfg, logger: log}
}

// EnsureReportBucket creates the report bucket when missing.  The result is
// remembered for the lifetime of the client.
func (c *Client) EnsureReportBucket(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ensured {
		return nil
	}

	bucket := c.cfg.ReportBucket
	exists, err := c.api.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to check bucket existence").WithDetail(bucket)
	}
	if !exists {
		if err := c.api.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.cfg.Region}); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "failed to create bucket").WithDetail(bucket)
		}
		c.logger.Info("Created bucket", logging.String("bucket", bucket))
	}
	c.ensured = true
	return nil
}

// HealthStatus reports object storage reachability.
type HealthStatus struct {
	Healthy bool
	Latency time.Duration
	Error   string
}

// HealthCheck lists buckets and times the round trip.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	_, err := c.api.ListBuckets(ctx)
	st := &HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	if err != nil {
		st.Error = err.Error()
		return st, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "minio health check failed")
	}
	return st, nil
}
