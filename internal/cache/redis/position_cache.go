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

const positionTTL = 30 * time.Minute

// PositionCache implements domain.PositionCache using the same hash layout as
// RecordCache: the snapshot under "data", its fetch timestamp under "ts".
//
// Key schema:
//
//	positions:{chainID}:positions:{account} - hash with fields "data" and "ts"
type PositionCache struct {
	rdb *redis.Client
}

// NewPositionCache creates a PositionCache backed by the given Client.
func NewPositionCache(c *Client) *PositionCache {
	return &PositionCache{rdb: c.Underlying()}
}

func positionsKey(scope domain.Scope) string { return "positions:" + scope.Key() }

// SetPositions replaces the snapshot for a scope.
func (pc *PositionCache) SetPositions(ctx context.Context, scope domain.Scope, positions []domain.Position, fetchedAt time.Time) error {
	data, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("redis: marshal positions %s: %w", scope.Key(), err)
	}

	key := positionsKey(scope)

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "ts", strconv.FormatInt(fetchedAt.UnixNano(), 10))
	pipe.Expire(ctx, key, positionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set positions %s: %w", scope.Key(), err)
	}
	return nil
}

// GetPositions retrieves the snapshot for a scope. It returns
// domain.ErrNotFound when no snapshot exists.
func (pc *PositionCache) GetPositions(ctx context.Context, scope domain.Scope) ([]domain.Position, time.Time, error) {
	vals, err := pc.rdb.HMGet(ctx, positionsKey(scope), "data", "ts").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, domain.ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("redis: get positions %s: %w", scope.Key(), err)
	}

	data, ts, err := hashSnapshot(vals)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get positions %s: %w", scope.Key(), err)
	}

	var positions []domain.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: unmarshal positions %s: %w", scope.Key(), err)
	}
	return positions, ts, nil
}

// Invalidate evicts the snapshot for a scope.
func (pc *PositionCache) Invalidate(ctx context.Context, scope domain.Scope) error {
	if err := pc.rdb.Del(ctx, positionsKey(scope)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate positions %s: %w", scope.Key(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionCache = (*PositionCache)(nil)
