package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Client handles S3/MinIO operations for the archive bucket, adapted
// from the warehouse sink's client: same MinIO-compatible construction
// and upload mechanics, repartitioned by record status and record
// creation date instead of app_id/hour.
type S3Client struct {
	client *s3.Client
	config S3Config
	logger *slog.Logger
}

// NewS3Client creates a new S3 client for the archive bucket.
func NewS3Client(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info("archive S3 client created", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)

	return &S3Client{client: client, config: cfg, logger: logger.With("component", "archive-s3-client")}, nil
}

// EnsureBucket creates the archive bucket if it doesn't already exist.
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.config.Bucket)})
	if err == nil {
		return nil
	}
	c.logger.Info("creating archive bucket", "bucket", c.config.Bucket)
	if _, err := c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.config.Bucket)}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Upload writes a Parquet file to the archive bucket.
func (c *S3Client) Upload(ctx context.Context, key string, data []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-parquet"),
	})
	if err != nil {
		return fmt.Errorf("upload to S3: %w", err)
	}
	c.logger.Debug("uploaded archive file", "key", key, "size_bytes", len(data))
	return nil
}

// GenerateKey builds a Hive-partitioned key for a batch of records
// sharing the same terminal status and creation date.
// Format: {prefix}/status={status}/year={y}/month={m}/day={d}/records_{uuid}.parquet
func (c *S3Client) GenerateKey(status string, year, month, day int) string {
	return fmt.Sprintf(
		"%s/status=%s/year=%d/month=%02d/day=%02d/records_%s.parquet",
		c.config.Prefix, status, year, month, day, uuid.New().String(),
	)
}

// HealthCheck verifies the archive bucket is reachable.
func (c *S3Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.config.Bucket)}); err != nil {
		return fmt.Errorf("archive S3 health check failed: %w", err)
	}
	return nil
}
