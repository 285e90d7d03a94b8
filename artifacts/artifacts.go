// Package artifacts persists CI build outputs to S3-compatible
// storage, one bucket per app, addressed by platform and build number.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

type Store struct {
	mc     *minio.Client
	config Config
}

func New(cfg Config) (*Store, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &Store{mc: mc, config: cfg}, nil
}

// bucketName derives a bucket-safe name from the app id.
func bucketName(app string) string {
	return "builds-" + strings.ToLower(strings.ReplaceAll(app, "_", "-"))
}

func objectKey(platform, buildNumber string) string {
	return fmt.Sprintf("%s/%s/artifact", platform, buildNumber)
}

func (s *Store) ensureBucket(ctx context.Context, name string) error {
	exists, err := s.mc.BucketExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", name, err)
	}
	if exists {
		return nil
	}
	region := s.config.Region
	if region == "" {
		region = "us-east-1"
	}
	if err := s.mc.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", name, err)
	}
	return nil
}

// Put streams an artifact into the app's bucket and returns its
// addressable URL. Re-uploading the same build overwrites, pushes are
// idempotent.
func (s *Store) Put(ctx context.Context, app, platform, buildNumber string, body io.Reader, size int64) (string, error) {
	bucket := bucketName(app)
	if err := s.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}
	key := objectKey(platform, buildNumber)
	_, err := s.mc.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	scheme := "http"
	if s.config.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.config.Endpoint, bucket, key), nil
}

// Get streams a stored artifact back.
func (s *Store) Get(ctx context.Context, app, platform, buildNumber string) (io.ReadCloser, error) {
	obj, err := s.mc.GetObject(ctx, bucketName(app), objectKey(platform, buildNumber), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return obj, nil
}

func (s *Store) Healthy(ctx context.Context) error {
	_, err := s.mc.ListBuckets(ctx)
	return err
}
