// Package chain implements the ledger-facing client for the prediction
// registry: typed contract reads, batched pool reads via multicall,
// transaction submission, receipt waits, and decoding of emitted events.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/forescene/forescene/internal/domain"
)

// Config holds RPC connection parameters and contract addresses.
type Config struct {
	RPCURL              string
	ChainID             uint64
	Registry            string
	Token               string
	Multicall           string
	ReceiptPollInterval time.Duration
}

// Client wraps an ethclient connection pinned to a single expected network.
type Client struct {
	ec        *ethclient.Client
	chainID   uint64
	registry  common.Address
	token     common.Address
	multicall common.Address
	poll      time.Duration
	logger    *slog.Logger
}

// Dial connects to the RPC endpoint, verifies the reported chain ID matches
// the configured one, and validates the contract addresses. A mismatch is
// surfaced as domain.ErrWrongNetwork naming the expected network.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain: %w: rpc_url is empty", domain.ErrNoClient)
	}
	for name, addr := range map[string]string{
		"registry":  cfg.Registry,
		"token":     cfg.Token,
		"multicall": cfg.Multicall,
	} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("chain: invalid %s address %q", name, addr)
		}
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	got, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("chain: read chain id: %w", err)
	}
	if got.Uint64() != cfg.ChainID {
		ec.Close()
		return nil, fmt.Errorf("chain: %w: expected chain %d, endpoint reports %d",
			domain.ErrWrongNetwork, cfg.ChainID, got.Uint64())
	}

	poll := cfg.ReceiptPollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return &Client{
		ec:        ec,
		chainID:   cfg.ChainID,
		registry:  common.HexToAddress(cfg.Registry),
		token:     common.HexToAddress(cfg.Token),
		multicall: common.HexToAddress(cfg.Multicall),
		poll:      poll,
		logger:    logger.With(slog.String("component", "chain")),
	}, nil
}

// ChainID returns the verified network identifier.
func (c *Client) ChainID() uint64 { return c.chainID }

// RegistryAddress returns the prediction registry contract address.
func (c *Client) RegistryAddress() common.Address { return c.registry }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.ec.Close() }

// WaitMined polls for the transaction receipt until the transaction is mined
// or the context is cancelled. A mined-but-reverted transaction is an error;
// the hash is included so the caller can surface it for external inspection.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		receipt, err := c.ec.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("chain: transaction %s reverted", hash.Hex())
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("chain: receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Balance returns the staking-token balance of an account.
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("chain: pack balanceOf: %w", err)
	}
	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf: %w", err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("chain: decode balanceOf: %w", err)
	}
	return vals[0].(*big.Int), nil
}
