package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"gpt4o-speed-bench/internal/config"
	"gpt4o-speed-bench/internal/logging"
)

// ErrNotConfigured is returned when MinIO settings are incomplete.
var ErrNotConfigured = errors.New("MINIO_ENDPOINT, MINIO_ACCESS_KEY_ID, MINIO_SECRET_ACCESS_KEY, and MINIO_BUCKET_NAME must be set")

// MinioClient holds the MinIO client and bucket name.
type MinioClient struct {
	Client     *minio.Client
	BucketName string
}

// NewMinioClient connects to MinIO and creates the bucket if it does not exist.
func NewMinioClient(ctx context.Context, cfg config.ObjectStoreConfig) (*MinioClient, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if MinIO bucket '%s' exists: %w", cfg.BucketName, err)
	}
	if !exists {
		logging.Logger.Info("MinIO bucket does not exist, creating it", zap.String("bucket", cfg.BucketName))
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create MinIO bucket '%s': %w", cfg.BucketName, err)
		}
	}

	return &MinioClient{Client: client, BucketName: cfg.BucketName}, nil
}

// RunPrefix is the object key prefix for a run's artifacts.
func RunPrefix(runID string) string {
	return path.Join("runs", runID) + "/"
}

// PublishArtifacts uploads local report files under runs/<runID>/ and
// returns local path -> object key for every uploaded file. It stops at the
// first failure.
func (mc *MinioClient) PublishArtifacts(ctx context.Context, runID string, paths []string) (map[string]string, error) {
	if mc.Client == nil {
		return nil, fmt.Errorf("MinIO client not initialized properly in MinioClient struct")
	}

	published := make(map[string]string, len(paths))
	for _, p := range paths {
		objectName := RunPrefix(runID) + filepath.Base(p)
		info, err := mc.Client.FPutObject(ctx, mc.BucketName, objectName, p, minio.PutObjectOptions{
			ContentType: ContentType(p),
		})
		if err != nil {
			return published, fmt.Errorf("failed to upload %s to MinIO (bucket: %s, object: %s): %w", p, mc.BucketName, objectName, err)
		}
		logging.Logger.Info("Published artifact",
			zap.String("object", objectName), zap.Int64("size", info.Size), zap.String("etag", info.ETag))
		published[p] = objectName
	}
	return published, nil
}

// GetFileReader retrieves an object as an io.ReadCloser with its size.
// The caller is responsible for closing the reader.
func (mc *MinioClient) GetFileReader(ctx context.Context, objectName string) (io.ReadCloser, int64, error) {
	if mc.Client == nil {
		return nil, 0, fmt.Errorf("MinIO client not initialized properly in MinioClient struct")
	}

	object, err := mc.Client.GetObject(ctx, mc.BucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", objectName, mc.BucketName, err)
	}

	stat, err := object.Stat()
	if err != nil {
		object.Close()
		return nil, 0, fmt.Errorf("failed to get object stats for '%s': %w", objectName, err)
	}
	return object, stat.Size, nil
}

// ContentType guesses the MIME type of a report artifact from its extension.
func ContentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".csv":
		return "text/csv; charset=utf-8"
	}
	if t := mime.TypeByExtension(filepath.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}
