package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/forescene/forescene/internal/domain"
	"github.com/redis/go-redis/v9"
)

// overlayTTL caps how long an optimistic patch can survive without a refresh
// clearing it.
const overlayTTL = 10 * time.Minute

// OverlayStore implements domain.OverlayStore. Each network's pending patches
// live in a single hash keyed by record id, so listing the full overlay for a
// read is one round trip.
//
// Key schema:
//
//	overlay:{chainID} - hash, field {recordID} containing a JSON PoolPatch
type OverlayStore struct {
	rdb *redis.Client
}

// NewOverlayStore creates an OverlayStore backed by the given Client.
func NewOverlayStore(c *Client) *OverlayStore {
	return &OverlayStore{rdb: c.Underlying()}
}

func overlayKey(chainID uint64) string {
	return "overlay:" + strconv.FormatUint(chainID, 10)
}

// Put records an optimistic patch for a record, replacing any earlier patch
// for the same record. Later writes to the same record win.
func (os *OverlayStore) Put(ctx context.Context, chainID uint64, patch domain.PoolPatch) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("redis: marshal patch %d: %w", patch.RecordID, err)
	}

	key := overlayKey(chainID)

	pipe := os.rdb.TxPipeline()
	pipe.HSet(ctx, key, strconv.FormatUint(patch.RecordID, 10), data)
	pipe.Expire(ctx, key, overlayTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put patch %d: %w", patch.RecordID, err)
	}
	return nil
}

// List returns every pending patch for a network keyed by record id. An empty
// overlay yields an empty map, not an error.
func (os *OverlayStore) List(ctx context.Context, chainID uint64) (map[uint64]domain.PoolPatch, error) {
	fields, err := os.rdb.HGetAll(ctx, overlayKey(chainID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list overlay %d: %w", chainID, err)
	}

	patches := make(map[uint64]domain.PoolPatch, len(fields))
	for field, raw := range fields {
		id, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			continue
		}
		var patch domain.PoolPatch
		if err := json.Unmarshal([]byte(raw), &patch); err != nil {
			return nil, fmt.Errorf("redis: unmarshal patch %s: %w", field, err)
		}
		patches[id] = patch
	}
	return patches, nil
}

// ClearBefore drops every patch applied before the cutoff. Called after a
// refresh with the refresh's fetch time, so patches raced in during the
// refresh survive until the next pass.
func (os *OverlayStore) ClearBefore(ctx context.Context, chainID uint64, cutoff time.Time) error {
	patches, err := os.List(ctx, chainID)
	if err != nil {
		return err
	}

	var expired []string
	for id, patch := range patches {
		if patch.AppliedAt.Before(cutoff) {
			expired = append(expired, strconv.FormatUint(id, 10))
		}
	}
	if len(expired) == 0 {
		return nil
	}

	if err := os.rdb.HDel(ctx, overlayKey(chainID), expired...).Err(); err != nil {
		return fmt.Errorf("redis: clear overlay %d: %w", chainID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OverlayStore = (*OverlayStore)(nil)
