package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/forescene/forescene/internal/domain"
)

// CreateArgs carries the validated arguments for a record-creation
// transaction.
type CreateArgs struct {
	ContentRef string
	Format     domain.ContentFormat
	Category   string
	Deadline   time.Time
	FeeBps     uint16
	Amount     *big.Int // initial stake moved with the creation
}

// Writer submits state-changing transactions signed by a single account. It
// wraps bound contracts for the registry and the staking token.
type Writer struct {
	client   *Client
	registry *bind.BoundContract
	token    *bind.BoundContract
	opts     *bind.TransactOpts
	account  common.Address
	logger   *slog.Logger
}

// NewWriter creates a Writer signing with the given hex-encoded private key.
func NewWriter(c *Client, privateKeyHex string, logger *slog.Logger) (*Writer, error) {
	opts, account, err := transactOptsFromKey(privateKeyHex, c.chainID)
	if err != nil {
		return nil, err
	}
	return &Writer{
		client:   c,
		registry: bind.NewBoundContract(c.registry, registryABI, c.ec, c.ec, c.ec),
		token:    bind.NewBoundContract(c.token, erc20ABI, c.ec, c.ec, c.ec),
		opts:     opts,
		account:  account,
		logger:   logger.With(slog.String("component", "chain_writer")),
	}, nil
}

// transactOptsFromKey builds keyed transact opts from a hex private key,
// tolerating an optional 0x prefix.
func transactOptsFromKey(privateKeyHex string, chainID uint64) (*bind.TransactOpts, common.Address, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	if keyHex == "" {
		return nil, common.Address{}, fmt.Errorf("chain: %w: private key is empty", domain.ErrNoAccount)
	}
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("chain: parse private key: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(pk, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("chain: keyed transactor: %w", err)
	}
	return opts, ethcrypto.PubkeyToAddress(pk.PublicKey), nil
}

// Account returns the signing account's address.
func (w *Writer) Account() common.Address { return w.account }

// transact clones the transact opts with the caller's context and submits.
func (w *Writer) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...any) (common.Hash, error) {
	opts := *w.opts
	opts.Context = ctx

	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: submit %s: %w", method, err)
	}
	w.logger.InfoContext(ctx, "transaction submitted",
		slog.String("method", method),
		slog.String("hash", tx.Hash().Hex()),
	)
	return tx.Hash(), nil
}

// Approve raises the registry's spending allowance for the signing account.
func (w *Writer) Approve(ctx context.Context, amount *big.Int) (common.Hash, error) {
	return w.transact(ctx, w.token, "approve", w.client.registry, amount)
}

// StakeFor stakes amount on the "for" side of a record.
func (w *Writer) StakeFor(ctx context.Context, recordID uint64, amount *big.Int) (common.Hash, error) {
	return w.transact(ctx, w.registry, "stakeFor", new(big.Int).SetUint64(recordID), amount)
}

// StakeAgainst stakes amount on the "against" side of a record.
func (w *Writer) StakeAgainst(ctx context.Context, recordID uint64, amount *big.Int) (common.Hash, error) {
	return w.transact(ctx, w.registry, "stakeAgainst", new(big.Int).SetUint64(recordID), amount)
}

// CopyRecord copies an existing record with the given stake amount.
func (w *Writer) CopyRecord(ctx context.Context, recordID uint64, amount *big.Int) (common.Hash, error) {
	return w.transact(ctx, w.registry, "copy", new(big.Int).SetUint64(recordID), amount)
}

// CreateRecord submits a record-creation transaction. The registry assigns
// the id, announced via the RecordCreated event in the receipt.
func (w *Writer) CreateRecord(ctx context.Context, args CreateArgs) (common.Hash, error) {
	return w.transact(ctx, w.registry, "create",
		args.ContentRef,
		uint8(args.Format),
		args.Category,
		big.NewInt(args.Deadline.Unix()),
		args.FeeBps,
		args.Amount,
	)
}

// WaitMined blocks until the transaction is confirmed, then decodes the
// receipt's registry events. A reverted transaction is an error.
func (w *Writer) WaitMined(ctx context.Context, hash common.Hash) ([]Event, error) {
	receipt, err := w.client.WaitMined(ctx, hash)
	if err != nil {
		return nil, err
	}
	return DecodeReceiptEvents(receipt, w.client.registry), nil
}
