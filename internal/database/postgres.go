package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/harmony-one/pumpfun-indexer/internal/config"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrCheckpointLost means the indexer_state row disappeared after
	// bootstrap. Forward progress can no longer be recorded safely.
	ErrCheckpointLost = errors.New("checkpoint row missing")

	// ErrTokenMissing means a trade referenced a token the batch transaction
	// could not resolve. The classifier should have rejected the batch first.
	ErrTokenMissing = errors.New("trade references unknown token")

	// ErrUnknownUser means a write referenced a wallet with no user_accounts
	// row, surfaced so the API can answer with a client error.
	ErrUnknownUser = errors.New("unknown user account")
)

type Database struct {
	pool    *pgxpool.Pool
	chainID int64
	logger  zerolog.Logger
}

func New(ctx context.Context, cfg *config.DatabaseConfig, chainID int64, logger zerolog.Logger) (*Database, error) {
	connString := cfg.ConnectionString()

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Msg("Connected to database")

	return &Database{
		pool:    pool,
		chainID: chainID,
		logger:  logger,
	}, nil
}

func (db *Database) Close() {
	db.pool.Close()
	db.logger.Info().Msg("Database connection closed")
}

func (db *Database) Pool() *pgxpool.Pool {
	return db.pool
}

// Transaction executes a function within a database transaction
func (db *Database) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				db.logger.Error().Err(rbErr).Msg("Failed to rollback transaction")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
