package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forescene/forescene/internal/domain"
	"github.com/forescene/forescene/internal/sequencer"
)

const testChainID = uint64(8453)

type memRecordCache struct {
	mu        sync.Mutex
	snapshots map[string][]domain.NormalizedRecord
	fetchedAt map[string]time.Time
	evicted   []string
}

func newMemRecordCache() *memRecordCache {
	return &memRecordCache{
		snapshots: map[string][]domain.NormalizedRecord{},
		fetchedAt: map[string]time.Time{},
	}
}

func (m *memRecordCache) SetRecords(ctx context.Context, scope domain.Scope, records []domain.NormalizedRecord, fetchedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[scope.Key()] = records
	m.fetchedAt[scope.Key()] = fetchedAt
	return nil
}

func (m *memRecordCache) GetRecords(ctx context.Context, scope domain.Scope) ([]domain.NormalizedRecord, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records, ok := m.snapshots[scope.Key()]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return records, m.fetchedAt[scope.Key()], nil
}

func (m *memRecordCache) Invalidate(ctx context.Context, scope domain.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, scope.Key())
	delete(m.fetchedAt, scope.Key())
	m.evicted = append(m.evicted, scope.Key())
	return nil
}

type memOverlay struct {
	mu      sync.Mutex
	patches map[uint64]domain.PoolPatch
	cleared []time.Time
}

func newMemOverlay() *memOverlay {
	return &memOverlay{patches: map[uint64]domain.PoolPatch{}}
}

func (m *memOverlay) Put(ctx context.Context, chainID uint64, patch domain.PoolPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patches[patch.RecordID] = patch
	return nil
}

func (m *memOverlay) List(ctx context.Context, chainID uint64) (map[uint64]domain.PoolPatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint64]domain.PoolPatch, len(m.patches))
	for id, p := range m.patches {
		out[id] = p
	}
	return out, nil
}

func (m *memOverlay) ClearBefore(ctx context.Context, chainID uint64, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, cutoff)
	for id, p := range m.patches {
		if p.AppliedAt.Before(cutoff) {
			delete(m.patches, id)
		}
	}
	return nil
}

type stubFetcher struct {
	mu      sync.Mutex
	records []domain.NormalizedRecord
	err     error
	calls   int
}

func (f *stubFetcher) FetchAll(ctx context.Context) ([]domain.NormalizedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *stubFetcher) FetchByCreator(ctx context.Context, creator string) ([]domain.NormalizedRecord, error) {
	return f.FetchAll(ctx)
}

func fetchedRecords(fetchedAt time.Time) []domain.NormalizedRecord {
	return []domain.NormalizedRecord{
		{
			Record:    domain.Record{ID: 1, Creator: "0xAAA", FeeBps: 100},
			Title:     "One",
			Odds:      domain.Odds{ForPct: 50, AgainstPct: 50, ForTotal: "100", AgainstTot: "100"},
			FetchedAt: fetchedAt,
		},
		{
			Record:    domain.Record{ID: 2, Creator: "0xBBB"},
			Title:     "Two",
			Odds:      domain.Odds{ForTotal: "0", AgainstTot: "0"},
			FetchedAt: fetchedAt,
		},
	}
}

func newRecordService(fetcher *stubFetcher, cache *memRecordCache, overlay *memOverlay) *RecordService {
	return NewRecordService(RecordServiceConfig{
		Fetcher:   fetcher,
		Cache:     cache,
		Overlay:   overlay,
		ChainID:   testChainID,
		Staleness: time.Minute,
		Logger:    slog.Default(),
	})
}

func TestListRecordsServesFreshCacheWithoutFetch(t *testing.T) {
	cache := newMemRecordCache()
	now := time.Now().UTC()
	require.NoError(t, cache.SetRecords(context.Background(), domain.AllRecords(testChainID), fetchedRecords(now), now))

	fetcher := &stubFetcher{}
	svc := newRecordService(fetcher, cache, newMemOverlay())

	records, err := svc.ListRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Zero(t, fetcher.calls, "fresh cache must not trigger a ledger read")
}

func TestListRecordsRefetchesWhenStale(t *testing.T) {
	cache := newMemRecordCache()
	stale := time.Now().Add(-10 * time.Minute)
	require.NoError(t, cache.SetRecords(context.Background(), domain.AllRecords(testChainID), fetchedRecords(stale), stale))

	now := time.Now().UTC()
	fetcher := &stubFetcher{records: fetchedRecords(now)}
	svc := newRecordService(fetcher, cache, newMemOverlay())

	records, err := svc.ListRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, fetcher.calls)

	// The cached snapshot was replaced with the fresh fetch time.
	_, ts, err := cache.GetRecords(context.Background(), domain.AllRecords(testChainID))
	require.NoError(t, err)
	assert.True(t, ts.Equal(now))
}

func TestListRecordsStaleBeatsEmpty(t *testing.T) {
	cache := newMemRecordCache()
	stale := time.Now().Add(-10 * time.Minute)
	require.NoError(t, cache.SetRecords(context.Background(), domain.AllRecords(testChainID), fetchedRecords(stale), stale))

	fetcher := &stubFetcher{err: errors.New("rpc down")}
	svc := newRecordService(fetcher, cache, newMemOverlay())

	records, err := svc.ListRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2, "stale snapshot is served when the ledger is unreachable")
}

func TestListRecordsErrorsWhenNothingAvailable(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("rpc down")}
	svc := newRecordService(fetcher, newMemRecordCache(), newMemOverlay())

	_, err := svc.ListRecords(context.Background())
	require.Error(t, err)
}

func TestGetRecordFromCollection(t *testing.T) {
	now := time.Now().UTC()
	fetcher := &stubFetcher{records: fetchedRecords(now)}
	svc := newRecordService(fetcher, newMemRecordCache(), newMemOverlay())

	rec, err := svc.GetRecord(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Two", rec.Title)

	_, err = svc.GetRecord(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvalidateAfterCreateEvictsAllRecords(t *testing.T) {
	cache := newMemRecordCache()
	svc := newRecordService(&stubFetcher{}, cache, newMemOverlay())

	err := svc.InvalidateAfterWrite(context.Background(), sequencer.WriteEvent{
		Action:   domain.ActionCreate,
		RecordID: 5,
		Amount:   big.NewInt(1),
	})
	require.NoError(t, err)
	assert.Contains(t, cache.evicted, domain.AllRecords(testChainID).Key())
}

func TestInvalidateAfterStakeWritesOverlayPatch(t *testing.T) {
	overlay := newMemOverlay()
	svc := newRecordService(&stubFetcher{}, newMemRecordCache(), overlay)

	require.NoError(t, svc.InvalidateAfterWrite(context.Background(), sequencer.WriteEvent{
		Action:   domain.ActionStakeFor,
		RecordID: 1,
		Amount:   big.NewInt(100),
	}))
	require.NoError(t, svc.InvalidateAfterWrite(context.Background(), sequencer.WriteEvent{
		Action:   domain.ActionStakeAgainst,
		RecordID: 2,
		Amount:   big.NewInt(200),
	}))
	require.NoError(t, svc.InvalidateAfterWrite(context.Background(), sequencer.WriteEvent{
		Action:   domain.ActionCopy,
		RecordID: 3,
		Amount:   big.NewInt(300),
	}))

	patches, _ := overlay.List(context.Background(), testChainID)
	require.Len(t, patches, 3)
	assert.Equal(t, "100", patches[1].ForDelta.String())
	assert.Nil(t, patches[1].AgainstDelta)
	assert.Equal(t, "200", patches[2].AgainstDelta.String())
	assert.Equal(t, "300", patches[3].ForDelta.String())
	assert.Equal(t, uint64(1), patches[3].CopyDelta)
}

func TestOverlayPatchAppliedOverCachedOdds(t *testing.T) {
	cache := newMemRecordCache()
	now := time.Now().UTC()
	require.NoError(t, cache.SetRecords(context.Background(), domain.AllRecords(testChainID), fetchedRecords(now), now))

	overlay := newMemOverlay()
	// Patch applied after the snapshot was fetched: visible.
	require.NoError(t, overlay.Put(context.Background(), testChainID, domain.PoolPatch{
		RecordID:  1,
		ForDelta:  big.NewInt(200),
		AppliedAt: now.Add(time.Second),
	}))
	// Patch older than the snapshot: the refresh already covers it.
	require.NoError(t, overlay.Put(context.Background(), testChainID, domain.PoolPatch{
		RecordID:  2,
		ForDelta:  big.NewInt(999),
		AppliedAt: now.Add(-time.Second),
	}))

	svc := newRecordService(&stubFetcher{}, cache, overlay)

	records, err := svc.ListRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Record 1: 100+200 for vs 100 against -> 75%.
	assert.InDelta(t, 75.0, records[0].Odds.ForPct, 0.001)
	assert.Equal(t, "300", records[0].Odds.ForTotal)

	// Record 2 unchanged.
	assert.Equal(t, "0", records[1].Odds.ForTotal)

	// The cached snapshot itself is untouched.
	cached, _, _ := cache.GetRecords(context.Background(), domain.AllRecords(testChainID))
	assert.Equal(t, "100", cached[0].Odds.ForTotal)
}

func TestRefreshClearsOverlayAtFetchTime(t *testing.T) {
	now := time.Now().UTC()
	fetcher := &stubFetcher{records: fetchedRecords(now)}
	overlay := newMemOverlay()
	require.NoError(t, overlay.Put(context.Background(), testChainID, domain.PoolPatch{
		RecordID:  1,
		ForDelta:  big.NewInt(10),
		AppliedAt: now.Add(-time.Minute),
	}))

	svc := newRecordService(fetcher, newMemRecordCache(), overlay)
	require.NoError(t, svc.Refresh(context.Background()))

	require.Len(t, overlay.cleared, 1)
	assert.True(t, overlay.cleared[0].Equal(now), "overlay cleared at the refresh fetch time")

	patches, _ := overlay.List(context.Background(), testChainID)
	assert.Empty(t, patches)
}
