package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Height returns the last fully indexed block for this chain, or ErrNotFound
// when the checkpoint row has not been bootstrapped yet.
func (db *Database) Height(ctx context.Context) (uint64, error) {
	var height uint64
	query := `SELECT last_block_number FROM indexer_state WHERE chain_id = $1`

	err := db.pool.QueryRow(ctx, query, db.chainID).Scan(&height)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to get checkpoint height: %w", err)
	}

	return height, nil
}

// SeedCheckpoint creates the singleton checkpoint row at the configured start
// block. A row that already exists is left untouched, so a concurrent or
// repeated bootstrap never moves the cursor backwards.
func (db *Database) SeedCheckpoint(ctx context.Context, height uint64) error {
	query := `
		INSERT INTO indexer_state (chain_id, last_block_number)
		VALUES ($1, $2)
		ON CONFLICT (chain_id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query, db.chainID, height)
	if err != nil {
		return fmt.Errorf("failed to seed checkpoint: %w", err)
	}

	db.logger.Info().
		Int64("chain_id", db.chainID).
		Uint64("height", height).
		Msg("Checkpoint bootstrapped")

	return nil
}

// advanceCheckpoint moves the cursor inside an open batch transaction.
// GREATEST keeps the height monotonically non-decreasing even if a stale
// range is replayed.
func (db *Database) advanceCheckpoint(ctx context.Context, tx pgx.Tx, height uint64) error {
	query := `
		UPDATE indexer_state
		SET last_block_number = GREATEST(last_block_number, $1),
		    updated_at = NOW()
		WHERE chain_id = $2`

	tag, err := tx.Exec(ctx, query, height, db.chainID)
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrCheckpointLost
	}

	return nil
}
