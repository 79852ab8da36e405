package archive

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// ErrNoRowsToWrite is returned when Write is called with an empty batch.
var ErrNoRowsToWrite = errors.New("no rows to write")

// ParquetWriter writes batches of archive Rows to Parquet, matching the
// warehouse sink's generic-writer pattern and codec selection.
type ParquetWriter struct {
	config ParquetConfig
}

// NewParquetWriter creates a Parquet writer for the given configuration.
func NewParquetWriter(cfg ParquetConfig) *ParquetWriter {
	return &ParquetWriter{config: cfg}
}

// Write serializes rows to a Parquet file and returns its bytes.
func (w *ParquetWriter) Write(rows []Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoRowsToWrite
	}

	var buf bytes.Buffer
	writer := parquet.NewGenericWriter[Row](&buf,
		parquet.Compression(w.getCompressionCodec()),
		parquet.CreatedBy("claimcore-archiver", "1.0.0", ""),
	)

	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	return buf.Bytes(), nil
}

func (w *ParquetWriter) getCompressionCodec() compress.Codec {
	switch w.config.Compression {
	case "snappy":
		return &parquet.Snappy
	case "gzip":
		return &parquet.Gzip
	case "zstd":
		return &parquet.Zstd
	case "none":
		return &parquet.Uncompressed
	default:
		return &parquet.Snappy
	}
}
