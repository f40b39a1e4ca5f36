package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/forescene/forescene/internal/domain"
	"github.com/redis/go-redis/v9"
)

// recordTTL is the hard expiry on cached record snapshots. The service layer
// applies its own, shorter staleness window; the TTL only bounds how long a
// snapshot can outlive a dead refresh loop.
const recordTTL = 30 * time.Minute

// RecordCache implements domain.RecordCache using Redis hashes with the
// JSON-serialized snapshot and its fetch timestamp stored side by side.
//
// Key schema:
//
//	records:{chainID}:{kind}[:{param}] - hash with fields "data" and "ts"
type RecordCache struct {
	rdb *redis.Client
}

// NewRecordCache creates a RecordCache backed by the given Client.
func NewRecordCache(c *Client) *RecordCache {
	return &RecordCache{rdb: c.Underlying()}
}

func recordsKey(scope domain.Scope) string { return "records:" + scope.Key() }

// SetRecords replaces the snapshot for a scope. The fetch timestamp is stored
// alongside the data so readers can judge staleness without a clock shared
// with the writer.
func (rc *RecordCache) SetRecords(ctx context.Context, scope domain.Scope, records []domain.NormalizedRecord, fetchedAt time.Time) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("redis: marshal records %s: %w", scope.Key(), err)
	}

	key := recordsKey(scope)

	pipe := rc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "ts", strconv.FormatInt(fetchedAt.UnixNano(), 10))
	pipe.Expire(ctx, key, recordTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set records %s: %w", scope.Key(), err)
	}
	return nil
}

// GetRecords retrieves the snapshot for a scope together with the time it was
// fetched from the ledger. It returns domain.ErrNotFound when no snapshot
// exists for the scope.
func (rc *RecordCache) GetRecords(ctx context.Context, scope domain.Scope) ([]domain.NormalizedRecord, time.Time, error) {
	vals, err := rc.rdb.HMGet(ctx, recordsKey(scope), "data", "ts").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, domain.ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("redis: get records %s: %w", scope.Key(), err)
	}

	data, ts, err := hashSnapshot(vals)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get records %s: %w", scope.Key(), err)
	}

	var records []domain.NormalizedRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: unmarshal records %s: %w", scope.Key(), err)
	}
	return records, ts, nil
}

// Invalidate evicts the snapshot for a scope. Evicting a missing scope is not
// an error.
func (rc *RecordCache) Invalidate(ctx context.Context, scope domain.Scope) error {
	if err := rc.rdb.Del(ctx, recordsKey(scope)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate records %s: %w", scope.Key(), err)
	}
	return nil
}

// hashSnapshot pulls the "data" and "ts" fields out of an HMGET result,
// mapping an absent entry to domain.ErrNotFound.
func hashSnapshot(vals []interface{}) ([]byte, time.Time, error) {
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, time.Time{}, domain.ErrNotFound
	}
	data, ok := vals[0].(string)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("unexpected data field type %T", vals[0])
	}
	tsStr, ok := vals[1].(string)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("unexpected ts field type %T", vals[1])
	}
	nanos, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("parse ts field: %w", err)
	}
	return []byte(data), time.Unix(0, nanos).UTC(), nil
}

// Compile-time interface check.
var _ domain.RecordCache = (*RecordCache)(nil)
