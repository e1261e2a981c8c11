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

	"github.com/harmony-one/pumpfun-indexer/internal/api"
	"github.com/harmony-one/pumpfun-indexer/internal/config"
	"github.com/harmony-one/pumpfun-indexer/internal/database"
	"github.com/harmony-one/pumpfun-indexer/internal/indexer"
	"github.com/harmony-one/pumpfun-indexer/internal/rpc"
)

func main() {
	var configPath string
	var role string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&role, "role", "both", "Role to run: api | worker | both")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Str("config", configPath).Str("role", role).Msg("Starting launchpad server")

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

	apiServer := api.NewAPIServer(db.Pool(), cfg.Chain.ChainID, logger)

	switch role {
	case "api":
		startAPI(ctx, apiServer, cfg.Server.Port, logger)
	case "worker":
		startWorker(ctx, cfg, db, logger)
	case "both":
		if cfg.Server.RunIndexer {
			go startWorker(ctx, cfg, db, logger)
		}
		startAPI(ctx, apiServer, cfg.Server.Port, logger)
	default:
		logger.Fatal().Str("role", role).Msg("invalid role, use api|worker|both")
	}
}

func startAPI(ctx context.Context, s *api.APIServer, port int, logger zerolog.Logger) {
	addr := fmt.Sprintf(":%d", port)
	if err := s.Start(ctx, addr); err != nil {
		logger.Fatal().Err(err).Msg("API server failed")
	}
}

func startWorker(ctx context.Context, cfg *config.Config, db *database.Database, logger zerolog.Logger) {
	client, err := rpc.NewClient(cfg.Chain.RPCEndpoint, cfg.Chain.ChainID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect RPC endpoint")
	}
	defer client.Close()

	if !client.IsConnected(ctx) {
		logger.Fatal().Str("endpoint", cfg.Chain.RPCEndpoint).Msg("RPC endpoint is not responding")
	}

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
	if err := ix.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Indexer failed")
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}
		logger = zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Caller().Logger()
	}
	return logger
}
