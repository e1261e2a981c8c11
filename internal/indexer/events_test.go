package indexer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmony-one/pumpfun-indexer/internal/database"
)

func TestClassifyCreationWithKnownCreator(t *testing.T) {
	parsed := factoryTestABI(t)
	ledger := &fakeLedger{
		names:   map[common.Address]string{testToken: "Harmony Pug"},
		symbols: map[common.Address]string{testToken: "PUG"},
	}
	store := newFakeStore(0)
	store.users[database.AddressKey(testSender)] = true

	classifier, err := NewClassifier(ledger, store, zerolog.Nop())
	require.NoError(t, err)

	log := createdLog(t, parsed, 42, testToken, 1700000000)
	token, err := classifier.ClassifyCreation(context.Background(), log)
	require.NoError(t, err)

	assert.Equal(t, database.AddressKey(testToken), token.Address)
	assert.Equal(t, "Harmony Pug", token.Name)
	assert.Equal(t, "PUG", token.Symbol)
	assert.Equal(t, uint64(42), token.BlockNumber)
	assert.Equal(t, int64(1700000000), token.Timestamp)
	require.NotNil(t, token.CreatorAddress)
	assert.Equal(t, database.AddressKey(testSender), *token.CreatorAddress)
}

func TestClassifyCreationWithoutUserAccount(t *testing.T) {
	parsed := factoryTestABI(t)
	ledger := &fakeLedger{}
	store := newFakeStore(0)

	classifier, err := NewClassifier(ledger, store, zerolog.Nop())
	require.NoError(t, err)

	log := createdLog(t, parsed, 42, testToken, 1700000000)
	token, err := classifier.ClassifyCreation(context.Background(), log)
	require.NoError(t, err)

	// No matching user account: token is kept, creator stays empty.
	assert.Nil(t, token.CreatorAddress)
	// Metadata lookups returned empty strings, so the placeholders apply.
	assert.Equal(t, "Unknown", token.Name)
	assert.Equal(t, "???", token.Symbol)
}

func TestClassifyTradeFields(t *testing.T) {
	parsed := factoryTestABI(t)
	ledger := &fakeLedger{}
	store := newFakeStore(0)
	store.tokens[database.AddressKey(testToken)] = true

	classifier, err := NewClassifier(ledger, store, zerolog.Nop())
	require.NoError(t, err)

	log := tradeLog(t, parsed, "TokenSell", 77, 4, testToken, 1000, 2500, 30, 1700000200)
	trade, err := classifier.ClassifyTrade(context.Background(), log, database.TradeSell, nil)
	require.NoError(t, err)

	assert.Equal(t, database.TradeSell, trade.Type)
	assert.Equal(t, database.AddressKey(testToken), trade.TokenAddress)
	assert.Equal(t, uint64(77), trade.BlockNumber)
	assert.Equal(t, uint(4), trade.LogIndex)
	assert.Equal(t, 0, trade.AmountIn.Cmp(big.NewInt(1000)))
	assert.Equal(t, 0, trade.AmountOut.Cmp(big.NewInt(2500)))
	assert.Equal(t, 0, trade.Fee.Cmp(big.NewInt(30)))
	assert.Equal(t, int64(1700000200), trade.Timestamp)
}

func TestClassifyTradeUnknownToken(t *testing.T) {
	parsed := factoryTestABI(t)
	classifier, err := NewClassifier(&fakeLedger{}, newFakeStore(0), zerolog.Nop())
	require.NoError(t, err)

	log := tradeLog(t, parsed, "TokenBuy", 77, 0, testToken, 10, 20, 1, 1700000200)
	_, err = classifier.ClassifyTrade(context.Background(), log, database.TradeBuy, nil)
	require.Error(t, err)

	var unknownToken *UnknownTokenError
	require.ErrorAs(t, err, &unknownToken)
	assert.Equal(t, database.AddressKey(testToken), unknownToken.Token)
	assert.Contains(t, unknownToken.Error(), unknownToken.Token)
}

func TestClassifyTradeAcceptsTokenFromSameBatch(t *testing.T) {
	parsed := factoryTestABI(t)
	classifier, err := NewClassifier(&fakeLedger{}, newFakeStore(0), zerolog.Nop())
	require.NoError(t, err)

	tokenKey := database.AddressKey(testToken)
	log := tradeLog(t, parsed, "TokenBuy", 77, 0, testToken, 10, 20, 1, 1700000200)
	trade, err := classifier.ClassifyTrade(context.Background(), log, database.TradeBuy, map[string]bool{tokenKey: true})
	require.NoError(t, err)
	assert.Equal(t, tokenKey, trade.TokenAddress)
}

func TestTopicsAreDistinct(t *testing.T) {
	created, buy, sell := mustTopics(t)
	assert.NotEqual(t, created, buy)
	assert.NotEqual(t, buy, sell)
	assert.NotEqual(t, created, sell)
}
