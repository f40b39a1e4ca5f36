package domain

import "math/big"

// Position is a user's accumulated stake on one record, split by side. Both
// amounts are monotonically non-decreasing per (account, record) until an
// external claim/payout event.
type Position struct {
	Account       string
	RecordID      uint64
	ForAmount     *big.Int
	AgainstAmount *big.Int
}

// IsEmpty reports whether the position carries no stake on either side.
func (p Position) IsEmpty() bool {
	return (p.ForAmount == nil || p.ForAmount.Sign() == 0) &&
		(p.AgainstAmount == nil || p.AgainstAmount.Sign() == 0)
}
