package archive

import "github.com/claimcore/core/internal/webhook"

// Row is the flattened, columnar shape a WebhookRecord (and, when
// present, its DeadLetterEntry) is written to Parquet as. PayloadDigest
// is kept for audit linkage; the raw Payload itself is dropped, as
// archived records are for compliance review of delivery outcomes, not
// payload replay.
type Row struct {
	WebhookID        string `parquet:"webhook_id,snappy"`
	ReferenceID      string `parquet:"reference_id,snappy,dict"`
	TaskID           string `parquet:"task_id,snappy,optional"`
	WebhookURL       string `parquet:"webhook_url,snappy"`
	Status           string `parquet:"status,snappy,dict"`
	Attempts         int32  `parquet:"attempts"`
	MaxAttempts      int32  `parquet:"max_attempts"`
	CreatedAtUnix    int64  `parquet:"created_at_unix"`
	CompletedAtUnix  int64  `parquet:"completed_at_unix,optional"`
	ResponseCode     int32  `parquet:"response_code,optional"`
	LastError        string `parquet:"last_error,snappy,optional"`
	CorrelationID    string `parquet:"correlation_id,snappy,optional"`
	PayloadDigest    string `parquet:"payload_digest,snappy,optional"`
	ErrorClass       string `parquet:"error_class,snappy,optional"`
	DeadLetterReason string `parquet:"dead_letter_reason,snappy,optional"`

	// Partition columns, for Hive/Athena-style queries.
	Year  int `parquet:"year,dict"`
	Month int `parquet:"month,dict"`
	Day   int `parquet:"day,dict"`
}

// rowFromRecord flattens a WebhookRecord and its optional DeadLetterEntry
// into a Row, partitioned by the record's creation date.
func rowFromRecord(r webhook.Record, dl *webhook.DeadLetterEntry) Row {
	row := Row{
		WebhookID:     r.WebhookID,
		ReferenceID:   r.ReferenceID,
		TaskID:        r.TaskID,
		WebhookURL:    r.WebhookURL,
		Status:        string(r.Status),
		Attempts:      int32(r.Attempts),
		MaxAttempts:   int32(r.MaxAttempts),
		CreatedAtUnix: r.CreatedAt.Unix(),
		LastError:     r.LastError,
		CorrelationID: r.CorrelationID,
		PayloadDigest: r.PayloadDigest,
		Year:          r.CreatedAt.UTC().Year(),
		Month:         int(r.CreatedAt.UTC().Month()),
		Day:           r.CreatedAt.UTC().Day(),
	}
	if r.CompletedAt != nil {
		row.CompletedAtUnix = r.CompletedAt.Unix()
	}
	if r.ResponseCode != nil {
		row.ResponseCode = int32(*r.ResponseCode)
	}
	if dl != nil {
		row.ErrorClass = dl.ErrorClass
		row.DeadLetterReason = dl.Reason
	}
	return row
}
