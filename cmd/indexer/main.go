package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/harmony-one/pumpfun-indexer/internal/config"
	"github.com/harmony-one/pumpfun-indexer/internal/database"
	"github.com/harmony-one/pumpfun-indexer/internal/indexer"
	"github.com/harmony-one/pumpfun-indexer/internal/rpc"
	"github.com/harmony-one/pumpfun-indexer/internal/scheduler"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().
		Str("config", configPath).
		Str("chain", cfg.Chain.Name).
		Msg("Starting launchpad indexer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.RunMigrations(ctx, &cfg.Database, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	db, err := database.New(ctx, &cfg.Database, cfg.Chain.ChainID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect database")
	}
	defer db.Close()

	client, err := rpc.NewClient(cfg.Chain.RPCEndpoint, cfg.Chain.ChainID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect RPC endpoint")
	}
	defer client.Close()

	if !client.IsConnected(ctx) {
		logger.Fatal().Str("endpoint", cfg.Chain.RPCEndpoint).Msg("RPC endpoint is not responding")
	}

	winner, err := scheduler.NewDailyWinnerScheduler(db, scheduler.Config{
		RunAtHour:   cfg.Winner.RunAtHour,
		RunAtMinute: cfg.Winner.RunAtMinute,
		MaxAttempts: cfg.Winner.MaxAttempts,
		PageSize:    cfg.Winner.PageSize,
		Workers:     int64(cfg.Winner.Workers),
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create daily winner scheduler")
	}
	if err := winner.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start daily winner scheduler")
	}
	defer winner.Stop()

	ix, err := indexer.New(indexer.Config{
		Factory:    common.HexToAddress(cfg.Chain.FactoryAddress),
		StartBlock: cfg.Chain.StartBlock,
		RangeSize:  cfg.Indexer.RangeSize,
		StallDelay: cfg.Indexer.StallDelay,
		RetryDelay: cfg.Indexer.RetryDelay,
	}, client, db, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create indexer")
	}

	// Run blocks until shutdown or a fatal indexing error. Fatal errors
	// reach us here so the decision to terminate stays at the process edge.
	if err := ix.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Indexer failed")
	}

	logger.Info().Msg("Indexer shutdown complete")
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05.000",
		}
		logger = zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Caller().Logger()
	}

	return logger
}
