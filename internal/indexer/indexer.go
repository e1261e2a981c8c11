package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/harmony-one/pumpfun-indexer/internal/database"
)

// Config holds the loop parameters. StartBlock seeds the checkpoint on first
// run; RangeSize caps how many blocks one iteration scans.
type Config struct {
	Factory    common.Address
	StartBlock uint64
	RangeSize  uint64
	StallDelay time.Duration
	RetryDelay time.Duration
}

type outcome int

const (
	outcomeAdvanced outcome = iota
	outcomeStalled
)

// Indexer drives the catch-up scan: one iteration at a time, no overlap,
// rescheduling itself with a delay picked from the iteration's outcome.
type Indexer struct {
	cfg        Config
	ledger     LedgerSource
	store      Store
	classifier *Classifier
	logger     zerolog.Logger
}

func New(cfg Config, ledger LedgerSource, store Store, logger zerolog.Logger) (*Indexer, error) {
	if cfg.RangeSize == 0 {
		return nil, fmt.Errorf("range size must be positive")
	}
	if cfg.StallDelay == 0 {
		cfg.StallDelay = 5 * time.Second
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 30 * time.Second
	}

	classifier, err := NewClassifier(ledger, store, logger)
	if err != nil {
		return nil, err
	}

	return &Indexer{
		cfg:        cfg,
		ledger:     ledger,
		store:      store,
		classifier: classifier,
		logger:     logger.With().Str("component", "indexer").Logger(),
	}, nil
}

// Run executes the loop until the context is cancelled or a fatal error
// occurs. Fatal errors are returned to the caller; the supervisor in cmd
// decides whether that means process exit.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	ix.logger.Info().
		Str("factory", ix.cfg.Factory.Hex()).
		Uint64("range_size", ix.cfg.RangeSize).
		Msg("Indexing loop started")

	for {
		if ctx.Err() != nil {
			ix.logger.Info().Msg("Indexing loop stopped")
			return nil
		}

		result, err := ix.runOnce(ctx)

		var delay time.Duration
		switch {
		case err != nil && IsFatal(err):
			ix.logger.Error().Err(err).Msg("Fatal indexing error, stopping loop")
			return err
		case errors.Is(err, context.Canceled):
			ix.logger.Info().Msg("Indexing loop stopped")
			return nil
		case err != nil:
			ix.logger.Error().Err(err).Dur("retry_in", ix.cfg.RetryDelay).Msg("Iteration failed, will retry same range")
			delay = ix.cfg.RetryDelay
		case result == outcomeStalled:
			delay = ix.cfg.StallDelay
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				ix.logger.Info().Msg("Indexing loop stopped")
				return nil
			case <-time.After(delay):
			}
		}
	}
}

// bootstrap seeds the checkpoint from the configured start block when no
// cursor exists yet.
func (ix *Indexer) bootstrap(ctx context.Context) error {
	_, err := ix.store.Height(ctx)
	if errors.Is(err, database.ErrNotFound) {
		return ix.store.SeedCheckpoint(ctx, ix.cfg.StartBlock)
	}
	return err
}

// runOnce is one pass through the state machine: compute the range, fetch
// the three event kinds, classify in creation-buy-sell order, and apply the
// batch with the checkpoint advance in one transaction.
func (ix *Indexer) runOnce(ctx context.Context) (outcome, error) {
	height, err := ix.store.Height(ctx)
	if err != nil {
		return outcomeStalled, err
	}

	tip, err := ix.ledger.LatestHeight(ctx)
	if err != nil {
		return outcomeStalled, err
	}

	from := height + 1
	if tip < from+1 {
		// Fewer than two new blocks is not a meaningful range.
		ix.logger.Debug().
			Uint64("checkpoint", height).
			Uint64("tip", tip).
			Msg("Caught up with chain")
		return outcomeStalled, nil
	}

	to := from + ix.cfg.RangeSize - 1
	if to > tip {
		to = tip
	}

	createdTopic, buyTopic, sellTopic := ix.classifier.Topics()

	createdLogs, err := ix.ledger.FilterLogs(ctx, from, to, ix.cfg.Factory, createdTopic)
	if err != nil {
		return outcomeStalled, err
	}
	buyLogs, err := ix.ledger.FilterLogs(ctx, from, to, ix.cfg.Factory, buyTopic)
	if err != nil {
		return outcomeStalled, err
	}
	sellLogs, err := ix.ledger.FilterLogs(ctx, from, to, ix.cfg.Factory, sellTopic)
	if err != nil {
		return outcomeStalled, err
	}

	// Creations first: buys and sells later in the batch may reference them.
	tokens := make([]*database.Token, 0, len(createdLogs))
	createdInBatch := make(map[string]bool, len(createdLogs))
	for _, log := range createdLogs {
		token, err := ix.classifier.ClassifyCreation(ctx, log)
		if err != nil {
			return outcomeStalled, err
		}
		tokens = append(tokens, token)
		createdInBatch[token.Address] = true
	}

	trades := make([]*database.Trade, 0, len(buyLogs)+len(sellLogs))
	for _, log := range buyLogs {
		trade, err := ix.classifier.ClassifyTrade(ctx, log, database.TradeBuy, createdInBatch)
		if err != nil {
			return outcomeStalled, err
		}
		trades = append(trades, trade)
	}
	for _, log := range sellLogs {
		trade, err := ix.classifier.ClassifyTrade(ctx, log, database.TradeSell, createdInBatch)
		if err != nil {
			return outcomeStalled, err
		}
		trades = append(trades, trade)
	}

	if err := ix.store.ApplyBatch(ctx, tokens, trades, to); err != nil {
		return outcomeStalled, err
	}

	ix.logger.Info().
		Uint64("from", from).
		Uint64("to", to).
		Uint64("lag", tip-to).
		Int("tokens", len(tokens)).
		Int("buys", len(buyLogs)).
		Int("sells", len(sellLogs)).
		Msg("Range indexed")

	return outcomeAdvanced, nil
}
