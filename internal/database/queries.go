package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// isForeignKeyViolation reports whether err is a postgres foreign key
// violation (SQLSTATE 23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// Query helpers backing the read API. They operate on the raw pool so the
// API server does not need the full Database wrapper.

type TokenRow struct {
	ID             int64   `json:"id"`
	Address        string  `json:"address"`
	Name           string  `json:"name"`
	Symbol         string  `json:"symbol"`
	TxnHash        string  `json:"txn_hash"`
	BlockNumber    uint64  `json:"block_number"`
	Timestamp      int64   `json:"timestamp"`
	CreatorAddress *string `json:"creator_address"`
}

type TradeRow struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	TxnHash     string `json:"txn_hash"`
	LogIndex    uint   `json:"log_index"`
	BlockNumber uint64 `json:"block_number"`
	TokenID     int64  `json:"token_id"`
	AmountIn    string `json:"amount_in"`
	AmountOut   string `json:"amount_out"`
	Fee         string `json:"fee"`
	Timestamp   int64  `json:"timestamp"`
}

type CommentRow struct {
	ID          int64     `json:"id"`
	TokenID     int64     `json:"token_id"`
	UserAddress string    `json:"user_address"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

type BalanceRow struct {
	UserAddress string `json:"user_address"`
	Balance     string `json:"balance"`
}

type BurnRow struct {
	ID        int64  `json:"id"`
	TxnHash   string `json:"txn_hash"`
	LogIndex  uint   `json:"log_index"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

type WinnerRow struct {
	Day          string `json:"day"`
	TokenID      int64  `json:"token_id"`
	TokenAddress string `json:"token_address"`
	Symbol       string `json:"symbol"`
	Volume       string `json:"volume"`
}

func ListTokens(ctx context.Context, pool *pgxpool.Pool, limit, offset int, search *string) ([]TokenRow, error) {
	query := `
		SELECT id, address, name, symbol, txn_hash, block_number, timestamp, creator_address
		FROM tokens`
	args := []any{}
	if search != nil {
		query += ` WHERE address = $1 OR name ILIKE '%' || $1 || '%' OR symbol ILIKE '%' || $1 || '%'`
		args = append(args, NormalizeAddress(*search))
	}
	query += fmt.Sprintf(` ORDER BY block_number DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var items []TokenRow
	for rows.Next() {
		var t TokenRow
		if err := rows.Scan(&t.ID, &t.Address, &t.Name, &t.Symbol, &t.TxnHash,
			&t.BlockNumber, &t.Timestamp, &t.CreatorAddress); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func GetTokenByAddress(ctx context.Context, pool *pgxpool.Pool, address string) (*TokenRow, error) {
	var t TokenRow
	query := `
		SELECT id, address, name, symbol, txn_hash, block_number, timestamp, creator_address
		FROM tokens
		WHERE address = $1`

	err := pool.QueryRow(ctx, query, NormalizeAddress(address)).Scan(
		&t.ID, &t.Address, &t.Name, &t.Symbol, &t.TxnHash,
		&t.BlockNumber, &t.Timestamp, &t.CreatorAddress,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &t, nil
}

func ListTrades(ctx context.Context, pool *pgxpool.Pool, limit, offset int, tradeType *string) ([]TradeRow, error) {
	query := `
		SELECT id, type, txn_hash, log_index, block_number, token_id,
		       amount_in::text, amount_out::text, fee::text, timestamp
		FROM trades`
	args := []any{}
	if tradeType != nil {
		query += ` WHERE type = $1`
		args = append(args, *tradeType)
	}
	query += fmt.Sprintf(` ORDER BY block_number DESC, log_index DESC LIMIT %d OFFSET %d`, limit, offset)

	return scanTrades(ctx, pool, query, args...)
}

func ListTradesByToken(ctx context.Context, pool *pgxpool.Pool, address string, limit, offset int) ([]TradeRow, error) {
	query := fmt.Sprintf(`
		SELECT t.id, t.type, t.txn_hash, t.log_index, t.block_number, t.token_id,
		       t.amount_in::text, t.amount_out::text, t.fee::text, t.timestamp
		FROM trades t
		JOIN tokens tok ON tok.id = t.token_id
		WHERE tok.address = $1
		ORDER BY t.block_number DESC, t.log_index DESC
		LIMIT %d OFFSET %d`, limit, offset)

	return scanTrades(ctx, pool, query, NormalizeAddress(address))
}

func scanTrades(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]TradeRow, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var items []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(&t.ID, &t.Type, &t.TxnHash, &t.LogIndex, &t.BlockNumber,
			&t.TokenID, &t.AmountIn, &t.AmountOut, &t.Fee, &t.Timestamp); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func ListComments(ctx context.Context, pool *pgxpool.Pool, address string, limit, offset int) ([]CommentRow, error) {
	query := fmt.Sprintf(`
		SELECT c.id, c.token_id, c.user_address, c.text, c.created_at
		FROM comments c
		JOIN tokens tok ON tok.id = c.token_id
		WHERE tok.address = $1
		ORDER BY c.created_at DESC
		LIMIT %d OFFSET %d`, limit, offset)

	rows, err := pool.Query(ctx, query, NormalizeAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var items []CommentRow
	for rows.Next() {
		var c CommentRow
		if err := rows.Scan(&c.ID, &c.TokenID, &c.UserAddress, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func InsertComment(ctx context.Context, pool *pgxpool.Pool, tokenAddress, userAddress, text string) (*CommentRow, error) {
	var c CommentRow
	query := `
		INSERT INTO comments (token_id, user_address, text)
		SELECT id, $2, $3 FROM tokens WHERE address = $1
		RETURNING id, token_id, user_address, text, created_at`

	err := pool.QueryRow(ctx, query,
		NormalizeAddress(tokenAddress), NormalizeAddress(userAddress), text,
	).Scan(&c.ID, &c.TokenID, &c.UserAddress, &c.Text, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		// The user_address FK rejects comments from unregistered wallets.
		if isForeignKeyViolation(err) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}
	return &c, nil
}

func InsertUser(ctx context.Context, pool *pgxpool.Pool, address string, username *string) error {
	query := `
		INSERT INTO user_accounts (address, username)
		VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, user_accounts.username)`

	if _, err := pool.Exec(ctx, query, NormalizeAddress(address), username); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func ListTokenBalances(ctx context.Context, pool *pgxpool.Pool, address string, limit, offset int) ([]BalanceRow, error) {
	query := fmt.Sprintf(`
		SELECT b.user_address, b.balance::text
		FROM token_balances b
		JOIN tokens tok ON tok.id = b.token_id
		WHERE tok.address = $1
		ORDER BY b.balance DESC
		LIMIT %d OFFSET %d`, limit, offset)

	rows, err := pool.Query(ctx, query, NormalizeAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var items []BalanceRow
	for rows.Next() {
		var b BalanceRow
		if err := rows.Scan(&b.UserAddress, &b.Balance); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func ListTokenBurns(ctx context.Context, pool *pgxpool.Pool, address string, limit, offset int) ([]BurnRow, error) {
	query := fmt.Sprintf(`
		SELECT b.id, b.txn_hash, b.log_index, b.amount::text, b.timestamp
		FROM token_burns b
		JOIN tokens tok ON tok.id = b.token_id
		WHERE tok.address = $1
		ORDER BY b.timestamp DESC
		LIMIT %d OFFSET %d`, limit, offset)

	rows, err := pool.Query(ctx, query, NormalizeAddress(address))
	if err != nil {
		return nil, fmt.Errorf("failed to list burns: %w", err)
	}
	defer rows.Close()

	var items []BurnRow
	for rows.Next() {
		var b BurnRow
		if err := rows.Scan(&b.ID, &b.TxnHash, &b.LogIndex, &b.Amount, &b.Timestamp); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

// ListCandles buckets a token's trades by interval. Volume is summed in SQL
// as NUMERIC so precision is preserved end to end.
func ListCandles(ctx context.Context, pool *pgxpool.Pool, address string, interval time.Duration, limit int) ([]Candle, error) {
	seconds := int64(interval / time.Second)
	if seconds <= 0 {
		seconds = 3600
	}

	query := fmt.Sprintf(`
		SELECT (t.timestamp / $2) * $2 AS bucket_start,
		       COUNT(*) AS trade_count,
		       COALESCE(SUM(t.amount_out), 0)::text AS volume
		FROM trades t
		JOIN tokens tok ON tok.id = t.token_id
		WHERE tok.address = $1
		GROUP BY bucket_start
		ORDER BY bucket_start DESC
		LIMIT %d`, limit)

	rows, err := pool.Query(ctx, query, NormalizeAddress(address), seconds)
	if err != nil {
		return nil, fmt.Errorf("failed to list candles: %w", err)
	}
	defer rows.Close()

	var items []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.BucketStart, &c.TradeCount, &c.Volume); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func ListDailyWinners(ctx context.Context, pool *pgxpool.Pool, limit, offset int) ([]WinnerRow, error) {
	query := fmt.Sprintf(`
		SELECT w.day::text, w.token_id, tok.address, tok.symbol, w.volume::text
		FROM daily_winners w
		JOIN tokens tok ON tok.id = w.token_id
		ORDER BY w.day DESC
		LIMIT %d OFFSET %d`, limit, offset)

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list winners: %w", err)
	}
	defer rows.Close()

	var items []WinnerRow
	for rows.Next() {
		var w WinnerRow
		if err := rows.Scan(&w.Day, &w.TokenID, &w.TokenAddress, &w.Symbol, &w.Volume); err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func GetStats(ctx context.Context, pool *pgxpool.Pool) (map[string]any, error) {
	var tokens, trades int64
	query := `SELECT (SELECT COUNT(*) FROM tokens), (SELECT COUNT(*) FROM trades)`
	if err := pool.QueryRow(ctx, query).Scan(&tokens, &trades); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return map[string]any{
		"tokens": tokens,
		"trades": trades,
	}, nil
}

// Aggregator support, on Database so the scheduler can consume it through a
// narrow interface.

// TokenPage returns one page of the token catalog ordered by id.
func (db *Database) TokenPage(ctx context.Context, limit, offset int) ([]TokenRef, error) {
	query := `SELECT id, address, symbol FROM tokens ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := db.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to page tokens: %w", err)
	}
	defer rows.Close()

	var items []TokenRef
	for rows.Next() {
		var t TokenRef
		if err := rows.Scan(&t.ID, &t.Address, &t.Symbol); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// TradeAmountsOut returns the amount_out values, as decimal strings, of all
// trades for one token persisted in [from, to). The window is bounded by
// created_at, not the on-chain event timestamp: a backfilled trade counts
// toward the day it landed in the store.
func (db *Database) TradeAmountsOut(ctx context.Context, tokenID int64, from, to time.Time) ([]string, error) {
	query := `
		SELECT amount_out::text
		FROM trades
		WHERE token_id = $1 AND created_at >= $2 AND created_at < $3`

	rows, err := db.pool.Query(ctx, query, tokenID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade amounts: %w", err)
	}
	defer rows.Close()

	var amounts []string
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return nil, err
		}
		amounts = append(amounts, amount)
	}
	return amounts, rows.Err()
}

// SaveDailyWinner upserts the winner for one UTC day, keeping a scheduled
// re-run of the same day idempotent.
func (db *Database) SaveDailyWinner(ctx context.Context, w *DailyWinner) error {
	query := `
		INSERT INTO daily_winners (day, token_id, volume)
		VALUES ($1, $2, $3)
		ON CONFLICT (day) DO UPDATE SET
			token_id = EXCLUDED.token_id,
			volume = EXCLUDED.volume`

	_, err := db.pool.Exec(ctx, query, w.Day, w.TokenID, BigIntToNumeric(w.Volume))
	if err != nil {
		return fmt.Errorf("failed to save daily winner: %w", err)
	}
	return nil
}
