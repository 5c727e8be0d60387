// Package storage archives reconciliation workbooks in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appreconciliation "github.com/erp/reconciliation/internal/application/reconciliation"
	infraconfig "github.com/erp/reconciliation/internal/infrastructure/config"
	"go.uber.org/zap"
)

var _ appreconciliation.ObjectStorage = (*S3ObjectStorage)(nil)

// S3ObjectStorage stores objects in any S3-compatible backend (AWS S3, MinIO, RustFS)
type S3ObjectStorage struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// S3ObjectStorageOption is a functional option for configuring S3ObjectStorage
type S3ObjectStorageOption func(*S3ObjectStorage)

// WithLogger sets a custom logger for S3ObjectStorage
func WithLogger(logger *zap.Logger) S3ObjectStorageOption {
	return func(s *S3ObjectStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewS3ObjectStorage creates a new S3ObjectStorage from configuration
func NewS3ObjectStorage(ctx context.Context, cfg *infraconfig.StorageConfig, opts ...S3ObjectStorageOption) (*S3ObjectStorage, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint, err := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	storage := &S3ObjectStorage{
		client: client,
		bucket: cfg.Bucket,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(storage)
	}
	return storage, nil
}

// normalizeEndpoint adds a scheme to a bare host. An empty endpoint keeps the
// SDK's AWS resolution.
func normalizeEndpoint(endpoint string, useSSL bool) (string, error) {
	if endpoint == "" {
		return "", nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid storage endpoint: %w", err)
	}
	return endpoint, nil
}

// EnsureBucket creates the bucket if it doesn't exist. Called at startup
// when archiving is enabled.
func (s *S3ObjectStorage) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating storage bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Upload writes body under key, replacing any existing object
func (s *S3ObjectStorage) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return errors.New("storage key is required")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Debug("Object uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// Bucket returns the bucket name
func (s *S3ObjectStorage) Bucket() string {
	return s.bucket
}
