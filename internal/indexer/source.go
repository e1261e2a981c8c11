package indexer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/harmony-one/pumpfun-indexer/internal/database"
)

// LedgerSource is the read-only chain gateway the indexer consumes. Calls
// may fail with transient network errors; the loop retries the same range.
type LedgerSource interface {
	// LatestHeight returns the current chain tip.
	LatestHeight(ctx context.Context) (uint64, error)

	// FilterLogs returns the contract's logs matching topic in the
	// inclusive block range [from, to], in chain order.
	FilterLogs(ctx context.Context, from, to uint64, address common.Address, topic common.Hash) ([]types.Log, error)

	// TransactionSender resolves the sender address of a transaction.
	TransactionSender(ctx context.Context, txHash common.Hash) (common.Address, error)

	// TokenMeta reads name() and symbol() from a token contract.
	TokenMeta(ctx context.Context, token common.Address) (name, symbol string, err error)
}

// Store is the slice of the persistence layer the indexer writes through.
// ApplyBatch must be atomic: either every record and the checkpoint advance
// land, or none do.
type Store interface {
	Height(ctx context.Context) (uint64, error)
	SeedCheckpoint(ctx context.Context, height uint64) error
	HasToken(ctx context.Context, address string) (bool, error)
	HasUser(ctx context.Context, address string) (bool, error)
	ApplyBatch(ctx context.Context, tokens []*database.Token, trades []*database.Trade, newHeight uint64) error
}
