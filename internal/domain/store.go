package domain

import (
	"context"
	"time"
)

// ListOpts carries standard pagination parameters for store queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// RecordStore persists normalized record snapshots so the API can serve
// reads across restarts and while the ledger is unreachable.
type RecordStore interface {
	UpsertBatch(ctx context.Context, chainID uint64, records []NormalizedRecord) error
	GetByID(ctx context.Context, chainID, id uint64) (NormalizedRecord, error)
	List(ctx context.Context, chainID uint64, opts ListOpts) ([]NormalizedRecord, error)
	ListByCreator(ctx context.Context, chainID uint64, creator string, opts ListOpts) ([]NormalizedRecord, error)
	// ListStaleBefore returns snapshots last refreshed before the cutoff,
	// used by the archiver.
	ListStaleBefore(ctx context.Context, chainID uint64, cutoff time.Time) ([]NormalizedRecord, error)
	Count(ctx context.Context, chainID uint64) (int64, error)
}

// PositionStore persists per-account position snapshots.
type PositionStore interface {
	UpsertBatch(ctx context.Context, chainID uint64, positions []Position) error
	ListByAccount(ctx context.Context, chainID uint64, account string) ([]Position, error)
}
