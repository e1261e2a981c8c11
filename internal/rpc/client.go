package rpc

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	ethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

const erc20ABIString = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

// Client wraps an Ethereum client for the chain the launchpad contract
// lives on. It is the concrete ledger source consumed by the indexer.
type Client struct {
	client   *ethclient.Client
	endpoint string
	signer   types.Signer
	erc20ABI abi.ABI
	logger   zerolog.Logger
}

// NewClient creates a new RPC client
func NewClient(endpoint string, chainID int64, logger zerolog.Logger) (*Client, error) {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	rpcClient, err := ethrpc.DialHTTPWithClient(endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	client := ethclient.NewClient(rpcClient)

	// Verify chain ID; a mismatch is logged, not fatal
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	networkID, err := client.ChainID(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to verify chain ID, continuing anyway")
	} else if networkID.Int64() != chainID {
		logger.Warn().
			Int64("expected", chainID).
			Int64("got", networkID.Int64()).
			Msg("Chain ID mismatch, continuing anyway")
	}

	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIString))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	logger.Info().
		Str("endpoint", endpoint).
		Int64("chain_id", chainID).
		Msg("Connected to RPC endpoint")

	return &Client{
		client:   client,
		endpoint: endpoint,
		signer:   types.LatestSignerForChainID(big.NewInt(chainID)),
		erc20ABI: erc20ABI,
		logger:   logger,
	}, nil
}

// Close closes the RPC client connection
func (c *Client) Close() {
	c.client.Close()
	c.logger.Info().Msg("RPC client connection closed")
}

// LatestHeight returns the current chain tip
func (c *Client) LatestHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := ensureDeadline(ctx)
	defer cancel()

	height, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return height, nil
}

// FilterLogs returns the contract's logs matching topic in the inclusive
// block range [from, to], in chain order.
func (c *Client) FilterLogs(ctx context.Context, from, to uint64, address common.Address, topic common.Hash) ([]types.Log, error) {
	ctx, cancel := ensureDeadline(ctx)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic}},
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs [%d, %d]: %w", from, to, err)
	}
	return logs, nil
}

// TransactionSender resolves the sender address of a transaction by hash.
// The lookup is retried; a single flaky response here would otherwise fail
// the whole scanned range.
func (c *Client) TransactionSender(ctx context.Context, txHash common.Hash) (common.Address, error) {
	ctx, cancel := ensureDeadline(ctx)
	defer cancel()

	var tx *types.Transaction
	err := c.Retry(ctx, func() error {
		var err error
		tx, _, err = c.client.TransactionByHash(ctx, txHash)
		return err
	}, 3)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get transaction %s: %w", txHash.Hex(), err)
	}

	sender, err := types.Sender(c.signer, tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover sender of %s: %w", txHash.Hex(), err)
	}
	return sender, nil
}

// TokenMeta reads name() and symbol() from a token contract. Either value
// failing to decode is not an error; the caller gets the zero string.
func (c *Client) TokenMeta(ctx context.Context, token common.Address) (name, symbol string, err error) {
	ctx, cancel := ensureDeadline(ctx)
	defer cancel()

	contract := bind.NewBoundContract(token, c.erc20ABI, c.client, c.client, c.client)
	opts := &bind.CallOpts{Context: ctx}

	results := []interface{}{new(string)}
	if callErr := contract.Call(opts, &results, "name"); callErr != nil {
		c.logger.Debug().Err(callErr).Str("token", token.Hex()).Msg("Failed to fetch token name")
	} else if v, ok := results[0].(*string); ok && v != nil {
		name = *v
	}

	results = []interface{}{new(string)}
	if callErr := contract.Call(opts, &results, "symbol"); callErr != nil {
		c.logger.Debug().Err(callErr).Str("token", token.Hex()).Msg("Failed to fetch token symbol")
	} else if v, ok := results[0].(*string); ok && v != nil {
		symbol = *v
	}

	return name, symbol, nil
}

// IsConnected checks if the client can reach the RPC endpoint
func (c *Client) IsConnected(ctx context.Context) bool {
	_, err := c.client.BlockNumber(ctx)
	return err == nil
}

// Retry wraps a function with bounded retry and linear backoff
func (c *Client) Retry(ctx context.Context, fn func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}

		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * time.Second
			c.logger.Warn().
				Err(err).
				Int("attempt", i+1).
				Dur("wait", waitTime).
				Msg("Retrying RPC call")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}
	return fmt.Errorf("max retries exceeded: %w", err)
}

func ensureDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 30*time.Second)
}
