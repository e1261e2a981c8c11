package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/harmony-one/pumpfun-indexer/internal/database"
)

// WinnerStore is the slice of the persistence layer the aggregator reads
// through. It only ever reads trades and tokens; the single write is the
// winner row itself.
type WinnerStore interface {
	TokenPage(ctx context.Context, limit, offset int) ([]database.TokenRef, error)
	TradeAmountsOut(ctx context.Context, tokenID int64, from, to time.Time) ([]string, error)
	SaveDailyWinner(ctx context.Context, w *database.DailyWinner) error
}

type Config struct {
	RunAtHour   int
	RunAtMinute int
	MaxAttempts int
	PageSize    int
	Workers     int64
}

// DailyWinnerScheduler runs once per day and ranks tokens by summed
// amount_out over the previous UTC calendar day.
type DailyWinnerScheduler struct {
	store     WinnerStore
	scheduler gocron.Scheduler
	cfg       Config
	logger    zerolog.Logger
}

func NewDailyWinnerScheduler(store WinnerStore, cfg Config, logger zerolog.Logger) (*DailyWinnerScheduler, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &DailyWinnerScheduler{
		store:     store,
		scheduler: s,
		cfg:       cfg,
		logger:    logger.With().Str("component", "daily-winner").Logger(),
	}, nil
}

func (s *DailyWinnerScheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(
			gocron.NewAtTime(uint(s.cfg.RunAtHour), uint(s.cfg.RunAtMinute), 0),
		)),
		gocron.NewTask(s.runDaily, ctx),
		gocron.WithName("daily-winner"),
	)
	if err != nil {
		return err
	}

	s.logger.Info().
		Int("hour", s.cfg.RunAtHour).
		Int("minute", s.cfg.RunAtMinute).
		Msg("Daily winner scheduler started")
	s.scheduler.Start()

	return nil
}

func (s *DailyWinnerScheduler) Stop() {
	s.logger.Info().Msg("Stopping daily winner scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down scheduler")
	}
}

// runDaily computes yesterday's winner with bounded retries. Failures are
// logged and never escalate past this job; the next scheduled run is
// unaffected.
func (s *DailyWinnerScheduler) runDaily(ctx context.Context) {
	day := time.Now().UTC().AddDate(0, 0, -1)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		winner, err := s.ComputeWinner(ctx, day)
		if err == nil {
			if winner == nil {
				s.logger.Info().Str("day", day.Format("2006-01-02")).Msg("No winner: no trades in window")
			} else {
				s.logger.Info().
					Str("day", day.Format("2006-01-02")).
					Str("token", winner.TokenAddress).
					Str("volume", winner.Volume.String()).
					Msg("Daily winner selected")
			}
			return
		}

		s.logger.Error().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", s.cfg.MaxAttempts).
			Msg("Daily winner computation failed")
	}

	s.logger.Error().
		Str("day", day.Format("2006-01-02")).
		Msg("Giving up on daily winner for this run")
}

// ComputeWinner scans all trades persisted during the given UTC day, sums
// amount_out per token as big integers, and persists the token with the
// largest sum. The window is bounded by persistence time, so a trade counts
// toward the day it was written, not the day its on-chain event fired. Ties
// resolve to the smaller token id. It returns nil with no error when no
// token traded in the window.
func (s *DailyWinnerScheduler) ComputeWinner(ctx context.Context, day time.Time) (*database.DailyWinner, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	start := time.Now()

	var (
		mu      sync.Mutex
		winner  *database.DailyWinner
		scanned int
	)

	sem := semaphore.NewWeighted(s.cfg.Workers)
	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	// Page through the whole catalog; a capped single page would silently
	// exclude tokens from winner consideration as the catalog grows.
	for offset := 0; ; offset += s.cfg.PageSize {
		tokens, err := s.store.TokenPage(ctx, s.cfg.PageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to page tokens at offset %d: %w", offset, err)
		}
		if len(tokens) == 0 {
			break
		}
		scanned += len(tokens)

		for _, token := range tokens {
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil, err
			}

			wg.Add(1)
			go func(token database.TokenRef) {
				defer wg.Done()
				defer sem.Release(1)

				volume, traded, err := s.tokenVolume(ctx, token.ID, dayStart, dayEnd)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
				if !traded {
					return
				}

				mu.Lock()
				defer mu.Unlock()
				if winner == nil ||
					volume.Cmp(winner.Volume) > 0 ||
					(volume.Cmp(winner.Volume) == 0 && token.ID < winner.TokenID) {
					winner = &database.DailyWinner{
						Day:          dayStart,
						TokenID:      token.ID,
						TokenAddress: token.Address,
						Volume:       volume,
					}
				}
			}(token)
		}

		if len(tokens) < s.cfg.PageSize {
			break
		}
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}

	if winner == nil {
		return nil, nil
	}

	if err := s.store.SaveDailyWinner(ctx, winner); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("tokens_scanned", scanned).
		Dur("duration", time.Since(start)).
		Msg("Winner computation completed")

	return winner, nil
}

// tokenVolume sums a token's amount_out values for the window. Amounts are
// arbitrary-precision; float arithmetic would lose precision on token
// quantities.
func (s *DailyWinnerScheduler) tokenVolume(ctx context.Context, tokenID int64, from, to time.Time) (*big.Int, bool, error) {
	amounts, err := s.store.TradeAmountsOut(ctx, tokenID, from, to)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load trades for token %d: %w", tokenID, err)
	}
	if len(amounts) == 0 {
		return nil, false, nil
	}

	total := new(big.Int)
	for _, amount := range amounts {
		n, err := database.NumericToBigInt(&amount)
		if err != nil {
			return nil, false, fmt.Errorf("token %d: %w", tokenID, err)
		}
		total.Add(total, n)
	}
	return total, true, nil
}
