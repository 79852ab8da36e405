package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/claimcore/core/internal/webhook"
)

// KVConfig configures the two JetStream Key-Value buckets backing the
// Status Store.
type KVConfig struct {
	StatusBucket     string        `env:"STATUS_BUCKET" envDefault:"webhook_status"`
	DeadLetterBucket string        `env:"DEAD_LETTER_BUCKET" envDefault:"dead_letter"`
	History          uint8         `env:"HISTORY" envDefault:"1"`
	TTL              time.Duration `env:"MAX_TTL" envDefault:"720h"` // bucket-level ceiling; see note below
}

// KVStore implements Store against two NATS JetStream Key-Value
// buckets. Native per-key KV TTL is not used, since it varies across
// server versions. Record.ExpiresAt is stamped on every write but is not
// read by any reaper: the lifecycle cleanup scheduler removes delivered
// and failed records whose CreatedAt is older than its configured max
// age, and does not remove non-terminal records. The bucket-level TTL
// here (default 30 days, the longest TTL class) is the only store-side
// expiry.
type KVStore struct {
	status     jetstream.KeyValue
	deadLetter jetstream.KeyValue
}

// NewKVStore creates (or attaches to) the two backing buckets.
func NewKVStore(ctx context.Context, js jetstream.JetStream, cfg KVConfig) (*KVStore, error) {
	statusKV, err := ensureBucket(ctx, js, cfg.StatusBucket, cfg.History, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("status bucket: %w", err)
	}
	dlKV, err := ensureBucket(ctx, js, cfg.DeadLetterBucket, cfg.History, webhook.TTLDeadLetter)
	if err != nil {
		return nil, fmt.Errorf("dead-letter bucket: %w", err)
	}
	return &KVStore{status: statusKV, deadLetter: dlKV}, nil
}

func ensureBucket(ctx context.Context, js jetstream.JetStream, name string, history uint8, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  name,
		History: history,
		TTL:     ttl,
	})
}

// Ping verifies bucket reachability.
func (s *KVStore) Ping(ctx context.Context) error {
	_, err := s.status.Status(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// encodedKey replaces characters JetStream KV keys forbid (KV keys
// cannot contain '.', which webhook_id's "<reference_id>_<task_id>"
// shape never produces, but defensively normalized here).
func encodedKey(webhookID string) string {
	return strings.ReplaceAll(webhookID, ".", "_")
}

func (s *KVStore) Put(ctx context.Context, record webhook.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := s.status.Put(ctx, encodedKey(record.WebhookID), data); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, webhookID string) (*webhook.Record, error) {
	entry, err := s.status.Get(ctx, encodedKey(webhookID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	var record webhook.Record
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &record, nil
}

func (s *KVStore) Delete(ctx context.Context, webhookID string) (bool, error) {
	existing, err := s.Get(ctx, webhookID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := s.status.Delete(ctx, encodedKey(webhookID)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return true, nil
}

func (s *KVStore) Scan(ctx context.Context, filter Filter, page, pageSize int) (Page, error) {
	records, err := s.allStatusRecords(ctx)
	if err != nil {
		return Page{}, err
	}

	matched := make([]webhook.Record, 0, len(records))
	for _, r := range records {
		if matchesFilter(r, filter) {
			matched = append(matched, r)
		}
	}

	total := len(matched)
	start := page * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return Page{Items: matched[start:end], Total: total}, nil
}

func matchesFilter(r webhook.Record, f Filter) bool {
	if f.ReferenceIDPrefix != "" && !strings.HasPrefix(r.ReferenceID, f.ReferenceIDPrefix) {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.OlderThan > 0 {
		cutoff := time.Now().Add(-time.Duration(f.OlderThan) * time.Second)
		if !r.CreatedAt.Before(cutoff) {
			return false
		}
	}
	return true
}

func (s *KVStore) allStatusRecords(ctx context.Context) ([]webhook.Record, error) {
	lister, err := s.status.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	defer func() { _ = lister.Stop() }()

	var records []webhook.Record
	for key := range lister.Keys() {
		entry, err := s.status.Get(ctx, key)
		if err != nil {
			continue
		}
		var record webhook.Record
		if err := json.Unmarshal(entry.Value(), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *KVStore) PutDeadLetter(ctx context.Context, entry webhook.DeadLetterEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead-letter entry: %w", err)
	}
	if _, err := s.deadLetter.Put(ctx, encodedKey(entry.WebhookID), data); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (s *KVStore) GetDeadLetter(ctx context.Context, webhookID string) (*webhook.DeadLetterEntry, error) {
	entry, err := s.deadLetter.Get(ctx, encodedKey(webhookID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	var dl webhook.DeadLetterEntry
	if err := json.Unmarshal(entry.Value(), &dl); err != nil {
		return nil, fmt.Errorf("unmarshal dead-letter entry: %w", err)
	}
	return &dl, nil
}

func (s *KVStore) BulkDelete(ctx context.Context, filter Filter) (int, error) {
	records, err := s.allStatusRecords(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, r := range records {
		if !matchesFilter(r, filter) {
			continue
		}
		if err := s.status.Delete(ctx, encodedKey(r.WebhookID)); err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrIO, err)
		}
		deleted++
	}
	return deleted, nil
}
