package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/forescene/forescene/internal/domain"
)

// Reader performs typed view calls against the registry and token contracts.
// Every method takes the context explicitly; nothing is read from ambient
// state.
type Reader struct {
	client *Client
}

// NewReader creates a Reader bound to the client's configured contracts.
func NewReader(c *Client) *Reader {
	return &Reader{client: c}
}

// call packs a view-call, executes it, and unpacks the raw return values.
func (r *Reader) call(ctx context.Context, to common.Address, contractABI string, method string, args ...any) ([]any, error) {
	parsed := registryABI
	if contractABI == "erc20" {
		parsed = erc20ABI
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := r.client.ec.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", method, err)
	}
	vals, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: decode %s: %w", method, err)
	}
	return vals, nil
}

// NextID reads the registry's id counter. Record ids run 1..NextID-1.
func (r *Reader) NextID(ctx context.Context) (uint64, error) {
	vals, err := r.call(ctx, r.client.registry, "registry", "getNextId")
	if err != nil {
		return 0, err
	}
	return vals[0].(*big.Int).Uint64(), nil
}

// GetRecord reads one record's full on-chain state.
func (r *Reader) GetRecord(ctx context.Context, id uint64) (domain.Record, error) {
	vals, err := r.call(ctx, r.client.registry, "registry", "getRecord", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Record{}, err
	}

	rec := domain.Record{
		ID:         vals[0].(*big.Int).Uint64(),
		Creator:    vals[1].(common.Address).Hex(),
		ContentRef: vals[2].(string),
		Format:     domain.ContentFormat(vals[3].(uint8)),
		Category:   vals[4].(string),
		Status:     domain.RecordStatus(vals[7].(uint8)),
		IsActive:   vals[8].(bool),
		FeeBps:     vals[9].(uint16),
	}
	if deadline := vals[5].(*big.Int); deadline.Sign() > 0 {
		rec.Deadline = time.Unix(deadline.Int64(), 0).UTC()
	}
	if lock := vals[6].(*big.Int); lock.Sign() > 0 {
		rec.LockTime = time.Unix(lock.Int64(), 0).UTC()
	}
	return rec, nil
}

// CopyCount reads how many times a record has been copied.
func (r *Reader) CopyCount(ctx context.Context, id uint64) (uint64, error) {
	vals, err := r.call(ctx, r.client.registry, "registry", "getCopyCount", new(big.Int).SetUint64(id))
	if err != nil {
		return 0, err
	}
	return vals[0].(*big.Int).Uint64(), nil
}

// GetPool reads one record's staking pool totals.
func (r *Reader) GetPool(ctx context.Context, id uint64) (domain.Pool, error) {
	vals, err := r.call(ctx, r.client.registry, "registry", "getPool", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Pool{}, err
	}
	return domain.Pool{
		ForTotal:     vals[0].(*big.Int),
		AgainstTotal: vals[1].(*big.Int),
		TotalStaked:  vals[2].(*big.Int),
		FeeBps:       vals[3].(uint16),
	}, nil
}

// GetPosition reads an account's stake amounts on one record.
func (r *Reader) GetPosition(ctx context.Context, id uint64, account string) (domain.Position, error) {
	vals, err := r.call(ctx, r.client.registry, "registry", "getPosition",
		new(big.Int).SetUint64(id), common.HexToAddress(account))
	if err != nil {
		return domain.Position{}, err
	}
	return domain.Position{
		Account:       account,
		RecordID:      id,
		ForAmount:     vals[0].(*big.Int),
		AgainstAmount: vals[1].(*big.Int),
	}, nil
}

// Allowance reads the owner's current spending allowance for the registry.
// Callers deciding whether to approve must call this immediately before the
// decision; cached allowance values are never trusted.
func (r *Reader) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	vals, err := r.call(ctx, r.client.token, "erc20", "allowance", owner, r.client.registry)
	if err != nil {
		return nil, err
	}
	return vals[0].(*big.Int), nil
}
