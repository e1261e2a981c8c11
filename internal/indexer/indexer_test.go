package indexer

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harmony-one/pumpfun-indexer/internal/database"
)

var (
	testFactory = common.HexToAddress("0x00000000000000000000000000000000000fac70")
	testToken   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSender  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// fakeLedger serves canned logs keyed by topic, filtered by block range.
type fakeLedger struct {
	tip       uint64
	logs      map[common.Hash][]types.Log
	names     map[common.Address]string
	symbols   map[common.Address]string
	tipErr    error
	filterErr error
}

func (f *fakeLedger) LatestHeight(ctx context.Context) (uint64, error) {
	return f.tip, f.tipErr
}

func (f *fakeLedger) FilterLogs(ctx context.Context, from, to uint64, address common.Address, topic common.Hash) ([]types.Log, error) {
	if f.filterErr != nil {
		return nil, f.filterErr
	}
	var out []types.Log
	for _, log := range f.logs[topic] {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeLedger) TransactionSender(ctx context.Context, txHash common.Hash) (common.Address, error) {
	return testSender, nil
}

func (f *fakeLedger) TokenMeta(ctx context.Context, token common.Address) (string, string, error) {
	return f.names[token], f.symbols[token], nil
}

type appliedBatch struct {
	tokens []*database.Token
	trades []*database.Trade
	height uint64
}

// fakeStore mimics the atomic batch semantics of the real store.
type fakeStore struct {
	height   uint64
	hasRow   bool
	tokens   map[string]bool
	users    map[string]bool
	applied  []appliedBatch
	applyErr error
}

func newFakeStore(height uint64) *fakeStore {
	return &fakeStore{
		height: height,
		hasRow: true,
		tokens: make(map[string]bool),
		users:  make(map[string]bool),
	}
}

func (s *fakeStore) Height(ctx context.Context) (uint64, error) {
	if !s.hasRow {
		return 0, database.ErrNotFound
	}
	return s.height, nil
}

func (s *fakeStore) SeedCheckpoint(ctx context.Context, height uint64) error {
	if !s.hasRow {
		s.height = height
		s.hasRow = true
	}
	return nil
}

func (s *fakeStore) HasToken(ctx context.Context, address string) (bool, error) {
	return s.tokens[address], nil
}

func (s *fakeStore) HasUser(ctx context.Context, address string) (bool, error) {
	return s.users[address], nil
}

func (s *fakeStore) ApplyBatch(ctx context.Context, tokens []*database.Token, trades []*database.Trade, newHeight uint64) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	for _, token := range tokens {
		s.tokens[token.Address] = true
	}
	for _, trade := range trades {
		if !s.tokens[trade.TokenAddress] {
			return database.ErrTokenMissing
		}
	}
	s.applied = append(s.applied, appliedBatch{tokens: tokens, trades: trades, height: newHeight})
	s.height = newHeight
	return nil
}

func testIndexer(t *testing.T, ledger LedgerSource, store Store, rangeSize uint64) *Indexer {
	t.Helper()
	ix, err := New(Config{
		Factory:    testFactory,
		StartBlock: 1,
		RangeSize:  rangeSize,
		StallDelay: time.Millisecond,
		RetryDelay: time.Millisecond,
	}, ledger, store, zerolog.Nop())
	require.NoError(t, err)
	return ix
}

func factoryTestABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(factoryABIString))
	require.NoError(t, err)
	return parsed
}

func createdLog(t *testing.T, parsed abi.ABI, block uint64, token common.Address, ts int64) types.Log {
	t.Helper()
	data, err := parsed.Events["TokenCreated"].Inputs.Pack(token, big.NewInt(ts))
	require.NoError(t, err)
	return types.Log{
		Address:     testFactory,
		Topics:      []common.Hash{parsed.Events["TokenCreated"].ID},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{byte(block), 1}),
		Index:       0,
	}
}

func tradeLog(t *testing.T, parsed abi.ABI, event string, block uint64, logIndex uint, token common.Address, amountIn, amountOut, fee int64, ts int64) types.Log {
	t.Helper()
	data, err := parsed.Events[event].Inputs.Pack(
		token, big.NewInt(amountIn), big.NewInt(amountOut), big.NewInt(fee), big.NewInt(ts))
	require.NoError(t, err)
	return types.Log{
		Address:     testFactory,
		Topics:      []common.Hash{parsed.Events[event].ID},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{byte(block), byte(logIndex), 2}),
		Index:       logIndex,
	}
}

func TestRunOnceAdvancesToRangeCap(t *testing.T) {
	ledger := &fakeLedger{tip: 5000, logs: map[common.Hash][]types.Log{}}
	store := newFakeStore(100)
	ix := testIndexer(t, ledger, store, 1000)

	result, err := ix.runOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outcomeAdvanced, result)
	// min(h + RANGE_SIZE, tip) = 1100
	assert.Equal(t, uint64(1100), store.height)
}

func TestRunOnceClampsToTip(t *testing.T) {
	ledger := &fakeLedger{tip: 150, logs: map[common.Hash][]types.Log{}}
	store := newFakeStore(100)
	ix := testIndexer(t, ledger, store, 1000)

	result, err := ix.runOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outcomeAdvanced, result)
	assert.Equal(t, uint64(150), store.height)
}

func TestRunOnceAdvancesWithZeroEvents(t *testing.T) {
	ledger := &fakeLedger{tip: 200, logs: map[common.Hash][]types.Log{}}
	store := newFakeStore(100)
	ix := testIndexer(t, ledger, store, 1000)

	_, err := ix.runOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, store.applied, 1)
	assert.Empty(t, store.applied[0].tokens)
	assert.Empty(t, store.applied[0].trades)
	assert.Equal(t, uint64(200), store.height)
}

func TestRunOnceStallsWhenCaughtUp(t *testing.T) {
	t.Run("tip equals checkpoint", func(t *testing.T) {
		ledger := &fakeLedger{tip: 100, logs: map[common.Hash][]types.Log{}}
		store := newFakeStore(100)
		ix := testIndexer(t, ledger, store, 1000)

		result, err := ix.runOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, outcomeStalled, result)
		assert.Equal(t, uint64(100), store.height)
		assert.Empty(t, store.applied)
	})

	t.Run("single new block is not a meaningful range", func(t *testing.T) {
		ledger := &fakeLedger{tip: 101, logs: map[common.Hash][]types.Log{}}
		store := newFakeStore(100)
		ix := testIndexer(t, ledger, store, 1000)

		result, err := ix.runOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, outcomeStalled, result)
		assert.Equal(t, uint64(100), store.height)
	})
}

func TestRunOnceUnknownTokenIsFatal(t *testing.T) {
	parsed := factoryTestABI(t)
	_, buyTopic, _ := mustTopics(t)
	ledger := &fakeLedger{
		tip: 150,
		logs: map[common.Hash][]types.Log{
			buyTopic: {tradeLog(t, parsed, "TokenBuy", 120, 3, testToken, 10, 20, 1, 1700000000)},
		},
	}
	store := newFakeStore(100)
	ix := testIndexer(t, ledger, store, 1000)

	_, err := ix.runOnce(context.Background())
	require.Error(t, err)

	var unknownToken *UnknownTokenError
	require.ErrorAs(t, err, &unknownToken)
	assert.Equal(t, database.AddressKey(testToken), unknownToken.Token)
	assert.True(t, IsFatal(err))

	// Checkpoint must not move and nothing may be persisted.
	assert.Equal(t, uint64(100), store.height)
	assert.Empty(t, store.applied)
}

func TestRunOnceCreationBeforeTradeInSameBatch(t *testing.T) {
	parsed := factoryTestABI(t)
	createdTopic, buyTopic, _ := mustTopics(t)
	ledger := &fakeLedger{
		tip: 150,
		logs: map[common.Hash][]types.Log{
			createdTopic: {createdLog(t, parsed, 110, testToken, 1700000000)},
			buyTopic:     {tradeLog(t, parsed, "TokenBuy", 111, 0, testToken, 100, 50, 2, 1700000100)},
		},
		names:   map[common.Address]string{testToken: "Test Token"},
		symbols: map[common.Address]string{testToken: "TST"},
	}
	store := newFakeStore(100)
	ix := testIndexer(t, ledger, store, 1000)

	result, err := ix.runOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outcomeAdvanced, result)

	require.Len(t, store.applied, 1)
	batch := store.applied[0]
	require.Len(t, batch.tokens, 1)
	require.Len(t, batch.trades, 1)
	assert.Equal(t, database.AddressKey(testToken), batch.tokens[0].Address)
	assert.Equal(t, batch.tokens[0].Address, batch.trades[0].TokenAddress)
	assert.Equal(t, database.TradeBuy, batch.trades[0].Type)
	assert.Equal(t, uint64(150), store.height)
}

func TestRunOnceBuysBeforeSells(t *testing.T) {
	parsed := factoryTestABI(t)
	_, buyTopic, sellTopic := mustTopics(t)
	ledger := &fakeLedger{
		tip: 150,
		logs: map[common.Hash][]types.Log{
			buyTopic:  {tradeLog(t, parsed, "TokenBuy", 120, 0, testToken, 10, 20, 1, 1700000000)},
			sellTopic: {tradeLog(t, parsed, "TokenSell", 115, 0, testToken, 5, 8, 1, 1700000000)},
		},
	}
	store := newFakeStore(100)
	store.tokens[database.AddressKey(testToken)] = true
	ix := testIndexer(t, ledger, store, 1000)

	_, err := ix.runOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, store.applied, 1)
	trades := store.applied[0].trades
	require.Len(t, trades, 2)
	assert.Equal(t, database.TradeBuy, trades[0].Type)
	assert.Equal(t, database.TradeSell, trades[1].Type)
}

func TestRunOnceTransientErrorKeepsCheckpoint(t *testing.T) {
	ledger := &fakeLedger{tip: 150, filterErr: assert.AnError, logs: map[common.Hash][]types.Log{}}
	store := newFakeStore(100)
	ix := testIndexer(t, ledger, store, 1000)

	_, err := ix.runOnce(context.Background())
	require.Error(t, err)
	assert.False(t, IsFatal(err))
	assert.Equal(t, uint64(100), store.height)
}

func TestBootstrapSeedsCheckpoint(t *testing.T) {
	ledger := &fakeLedger{tip: 10, logs: map[common.Hash][]types.Log{}}
	store := newFakeStore(0)
	store.hasRow = false
	ix, err := New(Config{
		Factory:    testFactory,
		StartBlock: 500,
		RangeSize:  1000,
	}, ledger, store, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, ix.bootstrap(context.Background()))
	height, err := store.Height(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), height)

	// Bootstrap of an existing row must not move the cursor.
	store.height = 600
	require.NoError(t, ix.bootstrap(context.Background()))
	assert.Equal(t, uint64(600), store.height)
}

func mustTopics(t *testing.T) (created, buy, sell common.Hash) {
	t.Helper()
	c, err := NewClassifier(&fakeLedger{}, newFakeStore(0), zerolog.Nop())
	require.NoError(t, err)
	return c.Topics()
}
