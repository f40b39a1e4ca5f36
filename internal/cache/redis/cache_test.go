package redis

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forescene/forescene/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleRecords() []domain.NormalizedRecord {
	return []domain.NormalizedRecord{
		{
			Record: domain.Record{ID: 1, Creator: "0xAAA", Category: "sports", FeeBps: 100},
			Title:  "First",
			Odds:   domain.Odds{ForPct: 60, AgainstPct: 40, ForTotal: "600", AgainstTot: "400"},
		},
		{
			Record: domain.Record{ID: 2, Creator: "0xBBB", Category: "politics"},
			Title:  "Second",
			Odds:   domain.Odds{ForTotal: "0", AgainstTot: "0"},
		},
	}
}

func TestRecordCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	rc := NewRecordCache(c)
	ctx := context.Background()

	scope := domain.AllRecords(8453)
	fetchedAt := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, rc.SetRecords(ctx, scope, sampleRecords(), fetchedAt))

	got, ts, err := rc.GetRecords(ctx, scope)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "First", got[0].Title)
	assert.Equal(t, uint64(2), got[1].ID)
	assert.True(t, ts.Equal(fetchedAt), "fetch timestamp survives the round trip")
}

func TestRecordCacheMissingScope(t *testing.T) {
	c := newTestClient(t)
	rc := NewRecordCache(c)

	_, _, err := rc.GetRecords(context.Background(), domain.AllRecords(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordCacheScopesAreIndependent(t *testing.T) {
	c := newTestClient(t)
	rc := NewRecordCache(c)
	ctx := context.Background()

	all := domain.AllRecords(8453)
	byCreator := domain.RecordsByCreator(8453, "0xaaa")

	require.NoError(t, rc.SetRecords(ctx, all, sampleRecords(), time.Now()))
	require.NoError(t, rc.SetRecords(ctx, byCreator, sampleRecords()[:1], time.Now()))

	require.NoError(t, rc.Invalidate(ctx, all))

	_, _, err := rc.GetRecords(ctx, all)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, _, err := rc.GetRecords(ctx, byCreator)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecordCacheInvalidateMissingIsNoError(t *testing.T) {
	c := newTestClient(t)
	rc := NewRecordCache(c)
	assert.NoError(t, rc.Invalidate(context.Background(), domain.AllRecords(99)))
}

func TestPositionCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	pc := NewPositionCache(c)
	ctx := context.Background()

	scope := domain.PositionsFor(8453, "0xacc")
	positions := []domain.Position{
		{Account: "0xacc", RecordID: 1, ForAmount: big.NewInt(100)},
		{Account: "0xacc", RecordID: 3, AgainstAmount: big.NewInt(50)},
	}
	fetchedAt := time.Now().UTC()

	require.NoError(t, pc.SetPositions(ctx, scope, positions, fetchedAt))

	got, _, err := pc.GetPositions(ctx, scope)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].RecordID)
	assert.Equal(t, "100", got[0].ForAmount.String())

	require.NoError(t, pc.Invalidate(ctx, scope))
	_, _, err = pc.GetPositions(ctx, scope)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOverlayPutListClear(t *testing.T) {
	c := newTestClient(t)
	ov := NewOverlayStore(c)
	ctx := context.Background()

	base := time.Now().UTC()
	older := domain.PoolPatch{RecordID: 1, ForDelta: big.NewInt(10), AppliedAt: base.Add(-time.Minute)}
	newer := domain.PoolPatch{RecordID: 2, AgainstDelta: big.NewInt(20), AppliedAt: base.Add(time.Minute)}

	require.NoError(t, ov.Put(ctx, 8453, older))
	require.NoError(t, ov.Put(ctx, 8453, newer))

	patches, err := ov.List(ctx, 8453)
	require.NoError(t, err)
	require.Len(t, patches, 2)
	assert.Equal(t, "10", patches[1].ForDelta.String())

	// Clearing at the refresh time drops only patches applied before it.
	require.NoError(t, ov.ClearBefore(ctx, 8453, base))

	patches, err = ov.List(ctx, 8453)
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Contains(t, patches, uint64(2))
}

func TestOverlayLaterPatchReplacesEarlier(t *testing.T) {
	c := newTestClient(t)
	ov := NewOverlayStore(c)
	ctx := context.Background()

	require.NoError(t, ov.Put(ctx, 1, domain.PoolPatch{RecordID: 7, ForDelta: big.NewInt(1), AppliedAt: time.Now()}))
	require.NoError(t, ov.Put(ctx, 1, domain.PoolPatch{RecordID: 7, ForDelta: big.NewInt(2), AppliedAt: time.Now()}))

	patches, err := ov.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, "2", patches[7].ForDelta.String())
}

func TestOverlayListEmpty(t *testing.T) {
	c := newTestClient(t)
	ov := NewOverlayStore(c)
	patches, err := ov.List(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, patches)
}

func TestLockManagerExclusion(t *testing.T) {
	c := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "refresh:records", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "refresh:records", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// A different key is unaffected.
	unlock2, err := lm.Acquire(ctx, "other", time.Minute)
	require.NoError(t, err)
	unlock2()

	unlock()
	// Unlock is idempotent and releases the key for the next holder.
	unlock()

	unlock3, err := lm.Acquire(ctx, "refresh:records", time.Minute)
	require.NoError(t, err)
	unlock3()
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c := newTestClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	// A tight burst must count every request even when timestamps collide.
	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "client-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within the limit", i)
	}

	allowed, err := rl.Allow(ctx, "client-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed, "fourth request exceeds the limit")

	// Other clients have their own window.
	allowed, err = rl.Allow(ctx, "client-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}
