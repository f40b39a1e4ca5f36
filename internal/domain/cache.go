package domain

import (
	"context"
	"fmt"
	"time"
)

// ScopeKind discriminates what a cached aggregate covers.
type ScopeKind string

const (
	ScopeAllRecords ScopeKind = "records"
	ScopeByCreator  ScopeKind = "creator"
	ScopePositions  ScopeKind = "positions"
)

// Scope keys a derived-state cache entry by network and what it aggregates.
type Scope struct {
	ChainID uint64
	Kind    ScopeKind
	Param   string // creator or account address for scoped kinds
}

// AllRecords returns the scope covering every record on a network.
func AllRecords(chainID uint64) Scope {
	return Scope{ChainID: chainID, Kind: ScopeAllRecords}
}

// RecordsByCreator returns the scope covering one creator's records.
func RecordsByCreator(chainID uint64, creator string) Scope {
	return Scope{ChainID: chainID, Kind: ScopeByCreator, Param: creator}
}

// PositionsFor returns the scope covering one account's positions.
func PositionsFor(chainID uint64, account string) Scope {
	return Scope{ChainID: chainID, Kind: ScopePositions, Param: account}
}

// Key renders the scope as a cache key component.
func (s Scope) Key() string {
	if s.Param == "" {
		return fmt.Sprintf("%d:%s", s.ChainID, s.Kind)
	}
	return fmt.Sprintf("%d:%s:%s", s.ChainID, s.Kind, s.Param)
}

// RecordCache stores aggregated record snapshots per scope. Implementations
// support exactly two mutations: replace with a fresh value, and evict.
type RecordCache interface {
	SetRecords(ctx context.Context, scope Scope, records []NormalizedRecord, fetchedAt time.Time) error
	GetRecords(ctx context.Context, scope Scope) ([]NormalizedRecord, time.Time, error)
	Invalidate(ctx context.Context, scope Scope) error
}

// PositionCache stores aggregated position snapshots per scope.
type PositionCache interface {
	SetPositions(ctx context.Context, scope Scope, positions []Position, fetchedAt time.Time) error
	GetPositions(ctx context.Context, scope Scope) ([]Position, time.Time, error)
	Invalidate(ctx context.Context, scope Scope) error
}

// OverlayStore keeps optimistic pool patches that are merged over cached
// reads and cleared once the underlying entry has been refreshed past the
// patch's timestamp.
type OverlayStore interface {
	Put(ctx context.Context, chainID uint64, patch PoolPatch) error
	List(ctx context.Context, chainID uint64) (map[uint64]PoolPatch, error)
	ClearBefore(ctx context.Context, chainID uint64, cutoff time.Time) error
}
