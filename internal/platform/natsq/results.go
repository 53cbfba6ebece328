package natsq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/phrazzld/story-api/internal/task"
)

// Results stores task records in a JetStream key-value bucket. The bucket TTL
// is the retention period for both records and revocation markers.
type Results struct {
	kv jetstream.KeyValue
}

var _ task.ResultBackend = (*Results)(nil)

// NewResults creates or updates the bucket and returns a result backend.
func NewResults(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*Results, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "story-api task results",
		TTL:         ttl,
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create result bucket %s: %w", bucket, err)
	}
	return &Results{kv: kv}, nil
}

// Get returns the latest record for taskID. An id that cannot form a key
// never had a record, so it reads as task.ErrRecordNotFound.
func (r *Results) Get(ctx context.Context, taskID string) (*task.Record, error) {
	entry, err := r.kv.Get(ctx, resultKey(taskID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrInvalidKey) {
			return nil, task.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read result %s: %w", taskID, err)
	}

	var rec task.Record
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", taskID, err)
	}
	return &rec, nil
}

// Put replaces the record for rec.TaskID.
func (r *Results) Put(ctx context.Context, rec *task.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", rec.TaskID, err)
	}
	if _, err := r.kv.Put(ctx, resultKey(rec.TaskID), data); err != nil {
		return fmt.Errorf("failed to write result %s: %w", rec.TaskID, err)
	}
	return nil
}

// Revoke writes the revocation marker. No task can carry an id that is not
// a valid key, so revoking one is a no-op.
func (r *Results) Revoke(ctx context.Context, taskID string) error {
	_, err := r.kv.Put(ctx, revokedKey(taskID), []byte("1"))
	if errors.Is(err, jetstream.ErrInvalidKey) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to write revocation for %s: %w", taskID, err)
	}
	return nil
}

// Revoked reports whether a revocation marker exists for taskID.
func (r *Results) Revoked(ctx context.Context, taskID string) (bool, error) {
	_, err := r.kv.Get(ctx, revokedKey(taskID))
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrInvalidKey) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read revocation for %s: %w", taskID, err)
	}
	return true, nil
}
