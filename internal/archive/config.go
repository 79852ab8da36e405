// Package archive periodically moves terminal WebhookRecords and their
// dead-letter entries out of the hot status store into columnar cold
// storage, keeping the KV store small while preserving delivery history
// for compliance audits.
package archive

import "time"

// Config configures the archival sweep.
type Config struct {
	// Enabled controls whether the scheduled sweep runs at all.
	Enabled bool `env:"ARCHIVE_ENABLED" envDefault:"true"`

	// Schedule is the interval between sweeps.
	Schedule time.Duration `env:"ARCHIVE_SCHEDULE" envDefault:"1h"`

	// RetentionAge is how long ago a terminal record must have been
	// created (measured from CreatedAt, not from when it reached its
	// terminal state) before it becomes eligible for archival. This is deliberately
	// shorter than webhook.TTLDelivered/TTLOther so a record is archived
	// before the KV store would otherwise expire it.
	RetentionAge time.Duration `env:"ARCHIVE_RETENTION_AGE" envDefault:"15m"`

	// BatchSize bounds how many records one sweep pass pulls from the
	// store before writing and uploading a Parquet file.
	BatchSize int `env:"ARCHIVE_BATCH_SIZE" envDefault:"5000"`

	S3      S3Config      `envPrefix:"ARCHIVE_S3_"`
	Parquet ParquetConfig `envPrefix:"ARCHIVE_PARQUET_"`
}

// S3Config holds S3/MinIO configuration for the archive bucket.
type S3Config struct {
	Endpoint        string `env:"ENDPOINT" envDefault:"http://localhost:9000"`
	Region          string `env:"REGION" envDefault:"us-east-1"`
	Bucket          string `env:"BUCKET" envDefault:"claimcore-archive"`
	AccessKeyID     string `env:"ACCESS_KEY_ID" envDefault:"minioadmin"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" envDefault:"minioadmin"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE" envDefault:"true"`
	Prefix          string `env:"PREFIX" envDefault:"webhook-records"`
}

// ParquetConfig holds Parquet writer configuration.
type ParquetConfig struct {
	// Compression is the compression codec (snappy, gzip, zstd, none).
	Compression string `env:"COMPRESSION" envDefault:"snappy"`
}
