// Package reads implements the aggregated read layer: fan-out batch reads of
// ledger records, content resolution, and normalization into display-ready
// records.
package reads

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/pinning"
)

// defaultFanout bounds concurrent per-id reads when no limit is configured.
const defaultFanout = 16

// Ledger is the read surface the aggregator needs from the chain client.
type Ledger interface {
	NextID(ctx context.Context) (uint64, error)
	GetRecord(ctx context.Context, id uint64) (domain.Record, error)
	CopyCount(ctx context.Context, id uint64) (uint64, error)
	PoolBatch(ctx context.Context, ids []uint64) (map[uint64]domain.Pool, error)
	GetPosition(ctx context.Context, id uint64, account string) (domain.Position, error)
}

// ContentResolver fetches a record's content reference.
type ContentResolver interface {
	Resolve(ctx context.Context, cid string) (pinning.Resolved, error)
}

// Aggregator assembles many per-id ledger reads into one normalized
// collection. Per-record failures degrade that record to safe defaults and
// never abort the batch; only a failed next-id read aborts the operation.
type Aggregator struct {
	ledger   Ledger
	resolver ContentResolver
	fanout   int
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator. fanout bounds the number of records
// read concurrently; values <= 0 select the default.
func NewAggregator(ledger Ledger, resolver ContentResolver, fanout int, logger *slog.Logger) *Aggregator {
	if fanout <= 0 {
		fanout = defaultFanout
	}
	return &Aggregator{
		ledger:   ledger,
		resolver: resolver,
		fanout:   fanout,
		logger:   logger.With(slog.String("component", "aggregator")),
	}
}

// FetchAll reads every record on the ledger (ids 1..nextId-1), resolves
// content, and merges pool-derived odds.
func (a *Aggregator) FetchAll(ctx context.Context) ([]domain.NormalizedRecord, error) {
	if a.ledger == nil {
		return nil, fmt.Errorf("reads: %w", domain.ErrNoClient)
	}

	nextID, err := a.ledger.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reads: next id: %w", err)
	}
	if nextID <= 1 {
		return []domain.NormalizedRecord{}, nil
	}

	ids := make([]uint64, 0, nextID-1)
	for id := uint64(1); id < nextID; id++ {
		ids = append(ids, id)
	}

	records := make([]domain.NormalizedRecord, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.fanout)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			records[i] = a.fetchOne(gctx, id)
			return nil
		})
	}
	// Goroutines report failures by degrading their slot, never by error.
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("reads: fetch all: %w", ctx.Err())
	}

	a.mergePools(ctx, ids, records)

	now := time.Now().UTC()
	for i := range records {
		records[i].FetchedAt = now
	}
	return records, nil
}

// FetchByCreator reads all records and keeps those created by the given
// account.
func (a *Aggregator) FetchByCreator(ctx context.Context, creator string) ([]domain.NormalizedRecord, error) {
	all, err := a.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.NormalizedRecord, 0, len(all))
	for _, rec := range all {
		if strings.EqualFold(rec.Creator, creator) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FetchPositions reads the account's position on every given record id,
// dropping empty positions. Per-id failures are skipped.
func (a *Aggregator) FetchPositions(ctx context.Context, account string, ids []uint64) ([]domain.Position, error) {
	if a.ledger == nil {
		return nil, fmt.Errorf("reads: %w", domain.ErrNoClient)
	}

	results := make([]*domain.Position, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.fanout)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			pos, err := a.ledger.GetPosition(gctx, id, account)
			if err != nil {
				a.logger.WarnContext(gctx, "position read failed",
					slog.Uint64("record_id", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if !pos.IsEmpty() {
				results[i] = &pos
			}
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("reads: fetch positions: %w", ctx.Err())
	}

	positions := make([]domain.Position, 0, len(ids))
	for _, p := range results {
		if p != nil {
			positions = append(positions, *p)
		}
	}
	return positions, nil
}

// fetchOne reads one record's body, copy count, and content. Any failure
// degrades the affected fields; the slot is always filled.
func (a *Aggregator) fetchOne(ctx context.Context, id uint64) domain.NormalizedRecord {
	rec, err := a.ledger.GetRecord(ctx, id)
	if err != nil {
		a.logger.WarnContext(ctx, "record read failed",
			slog.Uint64("record_id", id),
			slog.String("error", err.Error()),
		)
		return normalize(domain.Record{ID: id, Format: domain.FormatText}, nil)
	}
	rec.ID = id

	if count, err := a.ledger.CopyCount(ctx, id); err == nil {
		rec.CopyCount = count
	} else {
		a.logger.WarnContext(ctx, "copy count read failed",
			slog.Uint64("record_id", id),
			slog.String("error", err.Error()),
		)
	}

	var resolved *pinning.Resolved
	if rec.ContentRef != "" && a.resolver != nil {
		if res, err := a.resolver.Resolve(ctx, rec.ContentRef); err == nil {
			resolved = &res
		} else {
			a.logger.WarnContext(ctx, "content resolution failed",
				slog.Uint64("record_id", id),
				slog.String("content_ref", rec.ContentRef),
				slog.String("error", err.Error()),
			)
		}
	}

	return normalize(rec, resolved)
}

// mergePools performs the second-pass batched pool read and folds odds into
// the records. A failed batch degrades every pool to zero rather than
// aborting.
func (a *Aggregator) mergePools(ctx context.Context, ids []uint64, records []domain.NormalizedRecord) {
	pools, err := a.ledger.PoolBatch(ctx, ids)
	if err != nil {
		a.logger.WarnContext(ctx, "pool batch failed, using zero pools",
			slog.String("error", err.Error()),
		)
		pools = nil
	}
	for i, id := range ids {
		pool, ok := pools[id]
		if !ok {
			pool = domain.ZeroPool()
		}
		records[i].Odds = domain.OddsFromPool(pool)
	}
}
