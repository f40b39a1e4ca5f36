package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/forescene/forescene/internal/domain"
)

// multicall3Call mirrors the Multicall3.Call struct.
type multicall3Call struct {
	Target   common.Address `abi:"target"`
	CallData []byte         `abi:"callData"`
}

// multicall3Result mirrors the Multicall3.Result struct.
type multicall3Result struct {
	Success    bool   `abi:"success"`
	ReturnData []byte `abi:"returnData"`
}

// PoolBatch reads pool totals for every given record id in a single
// multicall round trip. Individual call failures are tolerated: the failing
// id maps to the zero pool and never aborts the batch. Only a failure of the
// aggregate call itself is returned as an error.
func (r *Reader) PoolBatch(ctx context.Context, ids []uint64) (map[uint64]domain.Pool, error) {
	pools := make(map[uint64]domain.Pool, len(ids))
	if len(ids) == 0 {
		return pools, nil
	}

	calls := make([]multicall3Call, 0, len(ids))
	for _, id := range ids {
		data, err := registryABI.Pack("getPool", new(big.Int).SetUint64(id))
		if err != nil {
			return nil, fmt.Errorf("chain: pack getPool(%d): %w", id, err)
		}
		calls = append(calls, multicall3Call{Target: r.client.registry, CallData: data})
	}

	input, err := multicallABI.Pack("tryAggregate", false, calls)
	if err != nil {
		return nil, fmt.Errorf("chain: pack tryAggregate: %w", err)
	}
	out, err := r.client.ec.CallContract(ctx, ethereum.CallMsg{To: &r.client.multicall, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: multicall: %w", err)
	}
	unpacked, err := multicallABI.Unpack("tryAggregate", out)
	if err != nil {
		return nil, fmt.Errorf("chain: decode tryAggregate: %w", err)
	}
	results := *abi.ConvertType(unpacked[0], new([]multicall3Result)).(*[]multicall3Result)

	for i, id := range ids {
		pools[id] = domain.ZeroPool()
		if i >= len(results) || !results[i].Success {
			continue
		}
		vals, err := registryABI.Unpack("getPool", results[i].ReturnData)
		if err != nil {
			// An undecodable per-id result degrades to the zero pool.
			continue
		}
		pools[id] = domain.Pool{
			ForTotal:     vals[0].(*big.Int),
			AgainstTotal: vals[1].(*big.Int),
			TotalStaked:  vals[2].(*big.Int),
			FeeBps:       vals[3].(uint16),
		}
	}
	return pools, nil
}
