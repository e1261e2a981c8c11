package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/harmony-one/pumpfun-indexer/internal/database"
)

// Launchpad factory events. All parameters are non-indexed, so everything
// lives in the log data field.
const factoryABIString = `[
	{"anonymous":false,"inputs":[
		{"indexed":false,"name":"token","type":"address"},
		{"indexed":false,"name":"timestamp","type":"uint256"}],
	 "name":"TokenCreated","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":false,"name":"token","type":"address"},
		{"indexed":false,"name":"amountIn","type":"uint256"},
		{"indexed":false,"name":"amountOut","type":"uint256"},
		{"indexed":false,"name":"fee","type":"uint256"},
		{"indexed":false,"name":"timestamp","type":"uint256"}],
	 "name":"TokenBuy","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":false,"name":"token","type":"address"},
		{"indexed":false,"name":"amountIn","type":"uint256"},
		{"indexed":false,"name":"amountOut","type":"uint256"},
		{"indexed":false,"name":"fee","type":"uint256"},
		{"indexed":false,"name":"timestamp","type":"uint256"}],
	 "name":"TokenSell","type":"event"}
]`

// Classifier maps raw factory event logs to domain records, enriching token
// creations with sender and contract metadata lookups.
type Classifier struct {
	ledger LedgerSource
	store  Store
	abi    abi.ABI
	logger zerolog.Logger

	topicCreated common.Hash
	topicBuy     common.Hash
	topicSell    common.Hash
}

func NewClassifier(ledger LedgerSource, store Store, logger zerolog.Logger) (*Classifier, error) {
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIString))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}

	return &Classifier{
		ledger:       ledger,
		store:        store,
		abi:          factoryABI,
		logger:       logger.With().Str("component", "classifier").Logger(),
		topicCreated: factoryABI.Events["TokenCreated"].ID,
		topicBuy:     factoryABI.Events["TokenBuy"].ID,
		topicSell:    factoryABI.Events["TokenSell"].ID,
	}, nil
}

// Topics returns the three event signatures in processing order.
func (c *Classifier) Topics() (created, buy, sell common.Hash) {
	return c.topicCreated, c.topicBuy, c.topicSell
}

// ClassifyCreation turns a TokenCreated log into a Token record. The creator
// is the transaction sender when a matching user account exists; otherwise
// the token is recorded without a creator.
func (c *Classifier) ClassifyCreation(ctx context.Context, log types.Log) (*database.Token, error) {
	args := make(map[string]interface{})
	if err := c.abi.UnpackIntoMap(args, "TokenCreated", log.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack TokenCreated in %s: %w", log.TxHash.Hex(), err)
	}

	tokenAddr, ok := args["token"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("invalid token address in TokenCreated event")
	}
	timestamp, ok := args["timestamp"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid timestamp in TokenCreated event")
	}

	sender, err := c.ledger.TransactionSender(ctx, log.TxHash)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve creator of %s: %w", log.TxHash.Hex(), err)
	}

	name, symbol, err := c.ledger.TokenMeta(ctx, tokenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata of %s: %w", tokenAddr.Hex(), err)
	}
	if name == "" {
		name = "Unknown"
	}
	if symbol == "" {
		symbol = "???"
	}

	var creator *string
	senderKey := database.AddressKey(sender)
	known, err := c.store.HasUser(ctx, senderKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up creator %s: %w", senderKey, err)
	}
	if known {
		creator = &senderKey
	} else {
		c.logger.Warn().
			Str("token", tokenAddr.Hex()).
			Str("sender", senderKey).
			Msg("Creator has no user account, recording token without creator")
	}

	token := &database.Token{
		Address:        database.AddressKey(tokenAddr),
		Name:           name,
		Symbol:         symbol,
		TxnHash:        log.TxHash.Hex(),
		BlockNumber:    log.BlockNumber,
		Timestamp:      timestamp.Int64(),
		CreatorAddress: creator,
	}

	c.logger.Info().
		Str("token", token.Address).
		Str("name", name).
		Str("symbol", symbol).
		Uint64("block", log.BlockNumber).
		Msg("Token created")

	return token, nil
}

// ClassifyTrade turns a TokenBuy or TokenSell log into a Trade record.
// createdInBatch holds token addresses created earlier in the same batch, so
// a trade can follow its creation within one scanned range.
func (c *Classifier) ClassifyTrade(ctx context.Context, log types.Log, tradeType database.TradeType, createdInBatch map[string]bool) (*database.Trade, error) {
	eventName := "TokenBuy"
	if tradeType == database.TradeSell {
		eventName = "TokenSell"
	}

	args := make(map[string]interface{})
	if err := c.abi.UnpackIntoMap(args, eventName, log.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s in %s: %w", eventName, log.TxHash.Hex(), err)
	}

	tokenAddr, ok := args["token"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("invalid token address in %s event", eventName)
	}
	amountIn, ok := args["amountIn"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid amountIn in %s event", eventName)
	}
	amountOut, ok := args["amountOut"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid amountOut in %s event", eventName)
	}
	fee, ok := args["fee"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid fee in %s event", eventName)
	}
	timestamp, ok := args["timestamp"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid timestamp in %s event", eventName)
	}

	tokenKey := database.AddressKey(tokenAddr)
	if !createdInBatch[tokenKey] {
		known, err := c.store.HasToken(ctx, tokenKey)
		if err != nil {
			return nil, fmt.Errorf("failed to look up token %s: %w", tokenKey, err)
		}
		if !known {
			return nil, &UnknownTokenError{Token: tokenKey, TxnHash: log.TxHash.Hex()}
		}
	}

	trade := &database.Trade{
		Type:         tradeType,
		TxnHash:      log.TxHash.Hex(),
		LogIndex:     log.Index,
		BlockNumber:  log.BlockNumber,
		TokenAddress: tokenKey,
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		Fee:          fee,
		Timestamp:    timestamp.Int64(),
	}

	c.logger.Debug().
		Str("type", string(tradeType)).
		Str("token", tokenKey).
		Str("amount_in", amountIn.String()).
		Str("amount_out", amountOut.String()).
		Uint64("block", log.BlockNumber).
		Msg("Trade classified")

	return trade, nil
}
