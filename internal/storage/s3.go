package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "chmura-plikow/internal/config"
)

// S3BlobStore stores file bytes in an S3 bucket (or an S3-compatible
// endpoint). Object keys are "container/key", so the bucket layout mirrors
// the per-owner container structure.
type S3BlobStore struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

func NewS3BlobStore(ctx context.Context, cfg appconfig.StorageConfig) (*S3BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket name is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3BlobStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

func (s *S3BlobStore) objectURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

func (s *S3BlobStore) Upload(ctx context.Context, data []byte, key string, container string) (*Locator, error) {
	objectKey := container + "/" + key

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object %s: %w", objectKey, err)
	}

	return &Locator{
		Key: objectKey,
		URL: s.objectURL(objectKey),
	}, nil
}

// Delete is idempotent: S3 DeleteObject succeeds for missing keys.
func (s *S3BlobStore) Delete(ctx context.Context, blobKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", blobKey, err)
	}

	return nil
}

func (s *S3BlobStore) Open(ctx context.Context, blobKey string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", blobKey, err)
	}

	return result.Body, nil
}
