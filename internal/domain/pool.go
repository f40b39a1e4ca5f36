package domain

import (
	"math/big"
	"time"
)

// Pool holds the staking totals for one record. Amounts are in token base
// units (18 decimals).
type Pool struct {
	ForTotal     *big.Int
	AgainstTotal *big.Int
	TotalStaked  *big.Int
	FeeBps       uint16
}

// ZeroPool is the safe default substituted when a per-record pool read fails.
func ZeroPool() Pool {
	return Pool{
		ForTotal:     new(big.Int),
		AgainstTotal: new(big.Int),
		TotalStaked:  new(big.Int),
	}
}

// Odds is the display-ready percentage split derived from a pool.
type Odds struct {
	ForPct     float64 `json:"for_pct"`
	AgainstPct float64 `json:"against_pct"`
	ForTotal   string  `json:"for_total"`
	AgainstTot string  `json:"against_total"`
}

// OddsFromPool computes percentage odds from pool totals. An empty pool
// yields 0/0 rather than an arbitrary split.
func OddsFromPool(p Pool) Odds {
	o := Odds{
		ForTotal:   safeString(p.ForTotal),
		AgainstTot: safeString(p.AgainstTotal),
	}
	if p.ForTotal == nil || p.AgainstTotal == nil {
		return o
	}
	total := new(big.Int).Add(p.ForTotal, p.AgainstTotal)
	if total.Sign() == 0 {
		return o
	}
	forF, _ := new(big.Float).SetInt(p.ForTotal).Float64()
	totF, _ := new(big.Float).SetInt(total).Float64()
	o.ForPct = forF / totF * 100
	o.AgainstPct = 100 - o.ForPct
	return o
}

func safeString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// PoolPatch is an optimistic overlay applied over a cached pool until the
// underlying entry has been refreshed past the patch's timestamp.
type PoolPatch struct {
	RecordID     uint64    `json:"record_id"`
	ForDelta     *big.Int  `json:"for_delta"`
	AgainstDelta *big.Int  `json:"against_delta"`
	CopyDelta    uint64    `json:"copy_delta"`
	AppliedAt    time.Time `json:"applied_at"`
}

// Apply merges the patch into a pool, returning the patched copy. The input
// pool is not mutated; cached collections are replaced, never edited in place.
func (p PoolPatch) Apply(pool Pool) Pool {
	out := Pool{
		ForTotal:     new(big.Int).Set(orZero(pool.ForTotal)),
		AgainstTotal: new(big.Int).Set(orZero(pool.AgainstTotal)),
		TotalStaked:  new(big.Int).Set(orZero(pool.TotalStaked)),
		FeeBps:       pool.FeeBps,
	}
	if p.ForDelta != nil {
		out.ForTotal.Add(out.ForTotal, p.ForDelta)
		out.TotalStaked.Add(out.TotalStaked, p.ForDelta)
	}
	if p.AgainstDelta != nil {
		out.AgainstTotal.Add(out.AgainstTotal, p.AgainstDelta)
		out.TotalStaked.Add(out.TotalStaked, p.AgainstDelta)
	}
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
