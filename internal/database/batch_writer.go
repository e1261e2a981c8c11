package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ApplyBatch persists one scanned block range atomically: token creations,
// then trades, then the checkpoint advance, all in a single transaction.
// Natural unique keys (tokens.address, trades (txn_hash, log_index)) make a
// replay of the same range a no-op, so a crash before commit never leaves
// partial state and a re-scan never duplicates rows.
func (db *Database) ApplyBatch(ctx context.Context, tokens []*Token, trades []*Trade, newHeight uint64) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, token := range tokens {
		if err := db.insertToken(ctx, tx, token); err != nil {
			return fmt.Errorf("failed to insert token %s: %w", token.Address, err)
		}
	}

	for _, trade := range trades {
		if err := db.insertTrade(ctx, tx, trade); err != nil {
			return fmt.Errorf("failed to insert trade %s/%d: %w", trade.TxnHash, trade.LogIndex, err)
		}
	}

	if err := db.advanceCheckpoint(ctx, tx, newHeight); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	db.logger.Debug().
		Uint64("height", newHeight).
		Int("tokens", len(tokens)).
		Int("trades", len(trades)).
		Msg("Batch written atomically")

	return nil
}

func (db *Database) insertToken(ctx context.Context, tx pgx.Tx, token *Token) error {
	query := `
		INSERT INTO tokens (
			address, name, symbol, txn_hash, block_number, timestamp, creator_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		token.Address,
		token.Name,
		token.Symbol,
		token.TxnHash,
		token.BlockNumber,
		token.Timestamp,
		token.CreatorAddress,
	)
	return err
}

func (db *Database) insertTrade(ctx context.Context, tx pgx.Tx, trade *Trade) error {
	// Resolve the token reference inside the same transaction so trades for
	// tokens created earlier in this batch see their row.
	var tokenID int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM tokens WHERE address = $1`, trade.TokenAddress,
	).Scan(&tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrTokenMissing, trade.TokenAddress)
		}
		return fmt.Errorf("failed to resolve token %s: %w", trade.TokenAddress, err)
	}
	trade.TokenID = tokenID

	query := `
		INSERT INTO trades (
			type, txn_hash, log_index, block_number, token_id,
			amount_in, amount_out, fee, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (txn_hash, log_index) DO NOTHING`

	_, err = tx.Exec(ctx, query,
		trade.Type,
		trade.TxnHash,
		trade.LogIndex,
		trade.BlockNumber,
		trade.TokenID,
		BigIntToNumeric(trade.AmountIn),
		BigIntToNumeric(trade.AmountOut),
		BigIntToNumeric(trade.Fee),
		trade.Timestamp,
	)
	return err
}

// HasToken reports whether a token address is already known to the store.
func (db *Database) HasToken(ctx context.Context, address string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM tokens WHERE address = $1)`
	if err := db.pool.QueryRow(ctx, query, address).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check token existence: %w", err)
	}
	return exists, nil
}

// HasUser reports whether a user account exists for the address.
func (db *Database) HasUser(ctx context.Context, address string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM user_accounts WHERE address = $1)`
	if err := db.pool.QueryRow(ctx, query, address).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
