package database

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TradeType distinguishes the two swap directions.
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// Token represents a launched token in the database
type Token struct {
	ID             int64     `db:"id"`
	Address        string    `db:"address"`
	Name           string    `db:"name"`
	Symbol         string    `db:"symbol"`
	TxnHash        string    `db:"txn_hash"`
	BlockNumber    uint64    `db:"block_number"`
	Timestamp      int64     `db:"timestamp"`
	CreatorAddress *string   `db:"creator_address"`
	CreatedAt      time.Time `db:"created_at"`
}

// Trade represents a single buy or sell swap against a token
type Trade struct {
	ID          int64     `db:"id"`
	Type        TradeType `db:"type"`
	TxnHash     string    `db:"txn_hash"`
	LogIndex    uint      `db:"log_index"`
	BlockNumber uint64    `db:"block_number"`
	TokenID     int64     `db:"token_id"`
	AmountIn    *big.Int  `db:"amount_in"`
	AmountOut   *big.Int  `db:"amount_out"`
	Fee         *big.Int  `db:"fee"`
	Timestamp   int64     `db:"timestamp"`
	CreatedAt   time.Time `db:"created_at"`

	// Resolved inside the batch transaction, not a column of trades.
	TokenAddress string `db:"-"`
}

// UserAccount represents a known wallet address
type UserAccount struct {
	Address   string    `db:"address"`
	Username  *string   `db:"username"`
	CreatedAt time.Time `db:"created_at"`
}

// Comment is a user comment attached to a token page
type Comment struct {
	ID          int64     `db:"id"`
	TokenID     int64     `db:"token_id"`
	UserAddress string    `db:"user_address"`
	Text        string    `db:"text"`
	CreatedAt   time.Time `db:"created_at"`
}

// TokenBalance tracks a holder's balance for one token. Written by flows
// outside the indexer; this process only serves it.
type TokenBalance struct {
	ID          int64     `db:"id"`
	TokenID     int64     `db:"token_id"`
	UserAddress string    `db:"user_address"`
	Balance     *big.Int  `db:"balance"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// TokenBurn records a burn of token supply
type TokenBurn struct {
	ID          int64     `db:"id"`
	TokenID     int64     `db:"token_id"`
	TxnHash     string    `db:"txn_hash"`
	LogIndex    uint      `db:"log_index"`
	Amount      *big.Int  `db:"amount"`
	Timestamp   int64     `db:"timestamp"`
	CreatedAt   time.Time `db:"created_at"`
}

// DailyWinner is the token with the largest summed trade volume for one UTC day
type DailyWinner struct {
	Day          time.Time `db:"day"`
	TokenID      int64     `db:"token_id"`
	TokenAddress string    `db:"token_address"`
	Volume       *big.Int  `db:"volume"`
	CreatedAt    time.Time `db:"created_at"`
}

// TokenRef is the slim projection the winner aggregator pages over
type TokenRef struct {
	ID      int64  `db:"id"`
	Address string `db:"address"`
	Symbol  string `db:"symbol"`
}

// Candle is a bucketed volume aggregate over trades, served by the API
type Candle struct {
	BucketStart int64  `json:"bucket_start"`
	TradeCount  int64  `json:"trade_count"`
	Volume      string `json:"volume"`
}

// Helper functions for conversions

// AddressKey normalizes an address for use as a case-insensitive key.
func AddressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// NormalizeAddress lowercases a user-supplied hex address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

func BigIntToNumeric(value *big.Int) *string {
	if value == nil {
		return nil
	}
	str := value.String()
	return &str
}

func NumericToBigInt(value *string) (*big.Int, error) {
	if value == nil {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(*value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", *value)
	}
	return n, nil
}
