package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/sequencer"
)

// RecordLister supplies the record collection a position read depends on.
type RecordLister interface {
	ListRecords(ctx context.Context) ([]domain.NormalizedRecord, error)
}

// PositionFetcher reads an account's position across a set of record ids.
type PositionFetcher interface {
	FetchPositions(ctx context.Context, account string, ids []uint64) ([]domain.Position, error)
}

// PositionService serves an account's positions. Position reads run strictly
// after the record collection is available: with no records there is nothing
// to hold a position in, so no ledger call is made at all.
type PositionService struct {
	records   RecordLister
	fetcher   PositionFetcher
	cache     domain.PositionCache
	store     domain.PositionStore
	chainID   uint64
	staleness time.Duration
	logger    *slog.Logger
}

// PositionServiceConfig carries the dependencies for a PositionService. Store
// is optional.
type PositionServiceConfig struct {
	Records   RecordLister
	Fetcher   PositionFetcher
	Cache     domain.PositionCache
	Store     domain.PositionStore
	ChainID   uint64
	Staleness time.Duration
	Logger    *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(cfg PositionServiceConfig) *PositionService {
	staleness := cfg.Staleness
	if staleness <= 0 {
		staleness = defaultStaleness
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PositionService{
		records:   cfg.Records,
		fetcher:   cfg.Fetcher,
		cache:     cfg.Cache,
		store:     cfg.Store,
		chainID:   cfg.ChainID,
		staleness: staleness,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// GetPositions returns the account's non-empty positions across all records.
func (s *PositionService) GetPositions(ctx context.Context, account string) ([]domain.Position, error) {
	scope := s.scopeFor(account)

	cached, fetchedAt, cacheErr := s.cache.GetPositions(ctx, scope)
	if cacheErr == nil && time.Since(fetchedAt) < s.staleness {
		return cached, nil
	}
	if cacheErr != nil && !errors.Is(cacheErr, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "cache read failed",
			slog.String("scope", scope.Key()),
			slog.String("error", cacheErr.Error()),
		)
	}

	positions, err := s.refresh(ctx, scope, account)
	if err == nil {
		return positions, nil
	}
	s.logger.WarnContext(ctx, "position refresh failed",
		slog.String("account", account),
		slog.String("error", err.Error()),
	)

	if cacheErr == nil {
		return cached, nil
	}
	if s.store != nil {
		stored, storeErr := s.store.ListByAccount(ctx, s.chainID, account)
		if storeErr == nil && len(stored) > 0 {
			return stored, nil
		}
	}
	return nil, fmt.Errorf("position_service: positions for %s: %w", account, err)
}

// Invalidate evicts the cached positions for an account, forcing the next
// read through to the ledger.
func (s *PositionService) Invalidate(ctx context.Context, account string) error {
	if err := s.cache.Invalidate(ctx, s.scopeFor(account)); err != nil {
		return fmt.Errorf("position_service: invalidate %s: %w", account, err)
	}
	return nil
}

// InvalidateAfterWrite evicts the acting account's cached positions after a
// confirmed write. Every write action moves the account's stake, so its
// positions scope is always affected.
func (s *PositionService) InvalidateAfterWrite(ctx context.Context, ev sequencer.WriteEvent) error {
	if (ev.Account == common.Address{}) {
		return nil
	}
	return s.Invalidate(ctx, ev.Account.Hex())
}

// scopeFor keys the account's positions scope. Addresses are lowercased so a
// checksummed writer address and a lowercase path parameter hit the same
// cache entry.
func (s *PositionService) scopeFor(account string) domain.Scope {
	return domain.PositionsFor(s.chainID, strings.ToLower(account))
}

var _ sequencer.Invalidator = (*PositionService)(nil)

func (s *PositionService) refresh(ctx context.Context, scope domain.Scope, account string) ([]domain.Position, error) {
	records, err := s.records.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if len(records) == 0 {
		return []domain.Position{}, nil
	}

	ids := make([]uint64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}

	positions, err := s.fetcher.FetchPositions(ctx, account, ids)
	if err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC()
	if err := s.cache.SetPositions(ctx, scope, positions, fetchedAt); err != nil {
		s.logger.WarnContext(ctx, "cache write failed",
			slog.String("scope", scope.Key()),
			slog.String("error", err.Error()),
		)
	}
	if s.store != nil && len(positions) > 0 {
		if err := s.store.UpsertBatch(ctx, s.chainID, positions); err != nil {
			s.logger.WarnContext(ctx, "store write failed",
				slog.String("account", account),
				slog.String("error", err.Error()),
			)
		}
	}
	return positions, nil
}
