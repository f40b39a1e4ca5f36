// Package service composes the read layer, caches, stores, and the sequencer
// into the operations the API surface exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/sequencer"
)

const (
	defaultStaleness   = 45 * time.Second
	refreshLockKey     = "refresh:records"
	refreshLockTTL     = 90 * time.Second
	channelRecords     = "records"
	eventRefreshFailed = "refresh_failed"
)

// Fetcher is the aggregated read surface the record service drives.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]domain.NormalizedRecord, error)
	FetchByCreator(ctx context.Context, creator string) ([]domain.NormalizedRecord, error)
}

// Events receives operator-facing notifications.
type Events interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RecordService serves normalized record collections. Reads prefer the cache
// while the snapshot is inside the staleness window; a stale or missing
// snapshot triggers a full refetch, and the persistent store answers when
// both the cache and the ledger are unavailable.
type RecordService struct {
	fetcher   Fetcher
	cache     domain.RecordCache
	overlay   domain.OverlayStore
	store     domain.RecordStore
	locks     domain.LockManager
	bus       domain.SignalBus
	events    Events
	chainID   uint64
	staleness time.Duration
	logger    *slog.Logger
}

// RecordServiceConfig carries the dependencies and tuning for a RecordService.
// The store, locks, bus, and events fields are optional; when nil the
// corresponding behavior is skipped.
type RecordServiceConfig struct {
	Fetcher   Fetcher
	Cache     domain.RecordCache
	Overlay   domain.OverlayStore
	Store     domain.RecordStore
	Locks     domain.LockManager
	Bus       domain.SignalBus
	Events    Events
	ChainID   uint64
	Staleness time.Duration
	Logger    *slog.Logger
}

// NewRecordService creates a RecordService.
func NewRecordService(cfg RecordServiceConfig) *RecordService {
	staleness := cfg.Staleness
	if staleness <= 0 {
		staleness = defaultStaleness
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordService{
		fetcher:   cfg.Fetcher,
		cache:     cfg.Cache,
		overlay:   cfg.Overlay,
		store:     cfg.Store,
		locks:     cfg.Locks,
		bus:       cfg.Bus,
		events:    cfg.Events,
		chainID:   cfg.ChainID,
		staleness: staleness,
		logger:    logger.With(slog.String("component", "record_service")),
	}
}

// ListRecords returns the full record collection for the configured network,
// refreshed when stale and overlaid with pending optimistic patches.
func (s *RecordService) ListRecords(ctx context.Context) ([]domain.NormalizedRecord, error) {
	return s.list(ctx, domain.AllRecords(s.chainID), func(ctx context.Context) ([]domain.NormalizedRecord, error) {
		return s.fetcher.FetchAll(ctx)
	})
}

// ListByCreator returns one creator's records.
func (s *RecordService) ListByCreator(ctx context.Context, creator string) ([]domain.NormalizedRecord, error) {
	return s.list(ctx, domain.RecordsByCreator(s.chainID, creator), func(ctx context.Context) ([]domain.NormalizedRecord, error) {
		return s.fetcher.FetchByCreator(ctx, creator)
	})
}

// GetRecord returns a single record by id, preferring the cached collection
// and falling back to the persistent store.
func (s *RecordService) GetRecord(ctx context.Context, id uint64) (domain.NormalizedRecord, error) {
	records, err := s.ListRecords(ctx)
	if err == nil {
		for _, rec := range records {
			if rec.ID == id {
				return rec, nil
			}
		}
		return domain.NormalizedRecord{}, domain.ErrNotFound
	}

	if s.store != nil {
		rec, storeErr := s.store.GetByID(ctx, s.chainID, id)
		if storeErr == nil {
			return rec, nil
		}
	}
	return domain.NormalizedRecord{}, fmt.Errorf("record_service: get record %d: %w", id, err)
}

// list serves one scope: cache inside the staleness window, refetch when
// stale, persistent store when both cache and ledger fail.
func (s *RecordService) list(ctx context.Context, scope domain.Scope, fetch func(context.Context) ([]domain.NormalizedRecord, error)) ([]domain.NormalizedRecord, error) {
	cached, fetchedAt, cacheErr := s.cache.GetRecords(ctx, scope)
	if cacheErr == nil && time.Since(fetchedAt) < s.staleness {
		return s.applyOverlay(ctx, cached), nil
	}
	if cacheErr != nil && !errors.Is(cacheErr, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "cache read failed",
			slog.String("scope", scope.Key()),
			slog.String("error", cacheErr.Error()),
		)
	}

	records, err := s.refreshScope(ctx, scope, fetch)
	if err == nil {
		return s.applyOverlay(ctx, records), nil
	}
	s.logger.WarnContext(ctx, "refresh failed",
		slog.String("scope", scope.Key()),
		slog.String("error", err.Error()),
	)

	// Stale beats empty.
	if cacheErr == nil {
		return s.applyOverlay(ctx, cached), nil
	}
	if fallback, ok := s.storeFallback(ctx, scope); ok {
		return fallback, nil
	}
	return nil, fmt.Errorf("record_service: list %s: %w", scope.Key(), err)
}

// refreshScope refetches a scope from the ledger, replaces the cached
// snapshot, persists it, and clears overlay patches the fresh data covers.
func (s *RecordService) refreshScope(ctx context.Context, scope domain.Scope, fetch func(context.Context) ([]domain.NormalizedRecord, error)) ([]domain.NormalizedRecord, error) {
	records, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC()
	if len(records) > 0 {
		fetchedAt = records[0].FetchedAt
	}

	if err := s.cache.SetRecords(ctx, scope, records, fetchedAt); err != nil {
		s.logger.WarnContext(ctx, "cache write failed",
			slog.String("scope", scope.Key()),
			slog.String("error", err.Error()),
		)
	}
	if s.store != nil {
		if err := s.store.UpsertBatch(ctx, s.chainID, records); err != nil {
			s.logger.WarnContext(ctx, "store write failed",
				slog.String("scope", scope.Key()),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.overlay != nil && scope.Kind == domain.ScopeAllRecords {
		if err := s.overlay.ClearBefore(ctx, s.chainID, fetchedAt); err != nil {
			s.logger.WarnContext(ctx, "overlay clear failed",
				slog.String("error", err.Error()),
			)
		}
	}
	s.publishRefreshed(ctx, scope, len(records))
	return records, nil
}

// Refresh refetches the all-records scope unconditionally. The refresh loop
// and watch mode call it on their tick.
func (s *RecordService) Refresh(ctx context.Context) error {
	_, err := s.refreshScope(ctx, domain.AllRecords(s.chainID), func(ctx context.Context) ([]domain.NormalizedRecord, error) {
		return s.fetcher.FetchAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("record_service: refresh: %w", err)
	}
	return nil
}

// RunRefreshLoop refreshes the all-records scope on a fixed interval until
// the context is cancelled. When a lock manager is configured, each tick is
// guarded so only one instance refreshes a shared cache.
func (s *RecordService) RunRefreshLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.staleness
	}
	s.logger.InfoContext(ctx, "refresh loop started",
		slog.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "refresh loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.refreshTick(ctx)
		}
	}
}

func (s *RecordService) refreshTick(ctx context.Context) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, refreshLockKey, refreshLockTTL)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				s.logger.WarnContext(ctx, "refresh lock failed",
					slog.String("error", err.Error()),
				)
			}
			return
		}
		defer unlock()
	}

	if err := s.Refresh(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled refresh failed",
			slog.String("error", err.Error()),
		)
		if s.events != nil {
			_ = s.events.Notify(ctx, eventRefreshFailed, "Refresh failed", err.Error())
		}
	}
}

// InvalidateAfterWrite maps a confirmed write to cache effects: creations
// evict the all-records scope so the new record is fetched on the next read,
// while stakes and copies record an optimistic patch that shows the pool
// movement immediately without a refetch.
func (s *RecordService) InvalidateAfterWrite(ctx context.Context, ev sequencer.WriteEvent) error {
	switch ev.Action {
	case domain.ActionCreate:
		if err := s.cache.Invalidate(ctx, domain.AllRecords(s.chainID)); err != nil {
			return fmt.Errorf("record_service: invalidate after create: %w", err)
		}
		return nil

	case domain.ActionStakeFor, domain.ActionStakeAgainst, domain.ActionCopy:
		if s.overlay == nil {
			return s.cache.Invalidate(ctx, domain.AllRecords(s.chainID))
		}
		patch := domain.PoolPatch{
			RecordID:  ev.RecordID,
			AppliedAt: time.Now().UTC(),
		}
		switch ev.Action {
		case domain.ActionStakeAgainst:
			patch.AgainstDelta = ev.Amount
		case domain.ActionCopy:
			patch.ForDelta = ev.Amount
			patch.CopyDelta = 1
		default:
			patch.ForDelta = ev.Amount
		}
		if err := s.overlay.Put(ctx, s.chainID, patch); err != nil {
			return fmt.Errorf("record_service: overlay put: %w", err)
		}
		return nil

	default:
		return nil
	}
}

// applyOverlay folds pending optimistic patches over a cached collection,
// returning a patched copy. The cached slice itself is never mutated.
func (s *RecordService) applyOverlay(ctx context.Context, records []domain.NormalizedRecord) []domain.NormalizedRecord {
	if s.overlay == nil || len(records) == 0 {
		return records
	}
	patches, err := s.overlay.List(ctx, s.chainID)
	if err != nil {
		s.logger.WarnContext(ctx, "overlay list failed",
			slog.String("error", err.Error()),
		)
		return records
	}
	if len(patches) == 0 {
		return records
	}

	out := make([]domain.NormalizedRecord, len(records))
	copy(out, records)
	for i := range out {
		patch, ok := patches[out[i].ID]
		if !ok || !patch.AppliedAt.After(out[i].FetchedAt) {
			continue
		}
		pool := patch.Apply(poolFromOdds(out[i].Odds, out[i].FeeBps))
		out[i].Odds = domain.OddsFromPool(pool)
		out[i].CopyCount += patch.CopyDelta
	}
	return out
}

// poolFromOdds reconstructs raw pool totals from the serialized odds so a
// patch can be applied to a cached record.
func poolFromOdds(o domain.Odds, feeBps uint16) domain.Pool {
	forTot, ok := new(big.Int).SetString(o.ForTotal, 10)
	if !ok {
		forTot = new(big.Int)
	}
	againstTot, ok := new(big.Int).SetString(o.AgainstTot, 10)
	if !ok {
		againstTot = new(big.Int)
	}
	return domain.Pool{
		ForTotal:     forTot,
		AgainstTotal: againstTot,
		TotalStaked:  new(big.Int).Add(forTot, againstTot),
		FeeBps:       feeBps,
	}
}

func (s *RecordService) storeFallback(ctx context.Context, scope domain.Scope) ([]domain.NormalizedRecord, bool) {
	if s.store == nil {
		return nil, false
	}
	var (
		records []domain.NormalizedRecord
		err     error
	)
	switch scope.Kind {
	case domain.ScopeByCreator:
		records, err = s.store.ListByCreator(ctx, s.chainID, scope.Param, domain.ListOpts{Limit: 1000})
	default:
		records, err = s.store.List(ctx, s.chainID, domain.ListOpts{Limit: 1000})
	}
	if err != nil {
		s.logger.WarnContext(ctx, "store fallback failed",
			slog.String("scope", scope.Key()),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if len(records) == 0 {
		return nil, false
	}
	s.logger.InfoContext(ctx, "serving from store fallback",
		slog.String("scope", scope.Key()),
		slog.Int("count", len(records)),
	)
	return records, true
}

func (s *RecordService) publishRefreshed(ctx context.Context, scope domain.Scope, count int) {
	if s.bus == nil {
		return
	}
	payload := []byte(fmt.Sprintf(`{"scope":%q,"count":%d}`, scope.Key(), count))
	if err := s.bus.Publish(ctx, channelRecords, payload); err != nil {
		s.logger.DebugContext(ctx, "publish refresh failed",
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check: the record service is the sequencer's cache
// invalidator.
var _ sequencer.Invalidator = (*RecordService)(nil)
