package minio

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

// URIScheme prefixes object locations accepted by FetchCheckpoint.
const URIScheme = "s3://"

// IsObjectURI reports whether path names an object rather than a local file.
func IsObjectURI(path string) bool {
	return strings.HasPrefix(path, URIScheme)
}

// ParseObjectURI splits "s3://bucket/key/with/slashes".
func ParseObjectURI(uri string) (bucket, key string, err error) {
	if !IsObjectURI(uri) {
		return "", "", errors.New(errors.ErrCodeBadRequest, "not an object uri").WithDetail(uri)
	}
	rest := strings.TrimPrefix(uri, URIScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.New(errors.ErrCodeBadRequest, "object uri needs a bucket and a key").WithDetail(uri)
	}
	return bucket, key, nil
}

// FetchCheckpoint downloads the object named by uri into the cache directory
// and returns the local path.  A cached copy with the same size is reused.
func (c *Client) FetchCheckpoint(ctx context.Context, uri string) (string, error) {
	bucket, key, err := ParseObjectURI(uri)
	if err != nil {
		return "", err
	}

	info, err := c.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", errors.Wrap(err, errors.ErrCodeCheckpointNotFound, "checkpoint object not found").WithDetail(uri)
		}
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat checkpoint").WithDetail(uri)
	}

	local := filepath.Join(c.cfg.CacheDir, bucket, filepath.FromSlash(key))
	if st, statErr := os.Stat(local); statErr == nil && st.Size() == info.Size {
		c.logger.Debug("checkpoint cache hit", logging.String("uri", uri), logging.String("path", local))
		return local, nil
	}

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to create checkpoint cache dir")
	}
	if err := c.api.FGetObject(ctx, bucket, key, local, minio.GetObjectOptions{}); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "failed to download checkpoint").WithDetail(uri)
	}
	c.logger.Info("checkpoint downloaded",
		logging.String("uri", uri),
		logging.String("path", local),
		logging.Int64("bytes", info.Size),
	)
	return local, nil
}

// UploadFile stores localPath under objectKey in the report bucket.
func (c *Client) UploadFile(ctx context.Context, localPath, objectKey string) error {
	if err := c.EnsureReportBucket(ctx); err != nil {
		return err
	}
	opts := minio.PutObjectOptions{ContentType: "text/tab-separated-values"}
	info, err := c.api.FPutObject(ctx, c.cfg.ReportBucket, objectKey, localPath, opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "failed to upload report").WithDetail(objectKey)
	}
	c.logger.Debug("report uploaded",
		logging.String("bucket", c.cfg.ReportBucket),
		logging.String("key", objectKey),
		logging.Int64("bytes", info.Size),
	)
	return nil
}
