package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/storage"
)

// TradeLedger implements storage.TradeLedger on PostgreSQL.
type TradeLedger struct {
	pool *Pool
}

// NewTradeLedger creates a TradeLedger over pool.
func NewTradeLedger(pool *Pool) *TradeLedger {
	return &TradeLedger{pool: pool}
}

var _ storage.TradeLedger = (*TradeLedger)(nil)

// Append inserts a terminal trade record. Returns ErrDuplicateKey if the
// trade_id already exists.
func (l *TradeLedger) Append(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			trade_id, symbol, side, quantity, leverage,
			entry_price, exit_price, entry_time, exit_time,
			margin, entry_fee, exit_fee, gross_pnl, net_pnl,
			exit_reason, held_ms
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16
		)
	`

	_, err := l.pool.Exec(ctx, query,
		t.TradeID, t.Symbol, string(t.Side), t.Quantity, t.Leverage,
		t.EntryPrice, t.ExitPrice, t.EntryTime, t.ExitTime,
		t.Margin, t.EntryFee, t.ExitFee, t.GrossPnL, t.NetPnL,
		t.ExitReason, t.Held.Milliseconds(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// All returns the full ledger in insertion order.
func (l *TradeLedger) All(ctx context.Context) ([]*domain.TradeRecord, error) {
	query := `
		SELECT
			trade_id, symbol, side, quantity, leverage,
			entry_price, exit_price, entry_time, exit_time,
			margin, entry_fee, exit_fee, gross_pnl, net_pnl,
			exit_reason, held_ms
		FROM trades
		ORDER BY seq ASC
	`

	rows, err := l.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByID retrieves one trade. Returns ErrNotFound when absent.
func (l *TradeLedger) GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error) {
	query := `
		SELECT
			trade_id, symbol, side, quantity, leverage,
			entry_price, exit_price, entry_time, exit_time,
			margin, entry_fee, exit_fee, gross_pnl, net_pnl,
			exit_reason, held_ms
		FROM trades
		WHERE trade_id = $1
	`

	t, err := scanTrade(l.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// BySymbol retrieves all trades for one symbol in insertion order.
func (l *TradeLedger) BySymbol(ctx context.Context, symbol string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT
			trade_id, symbol, side, quantity, leverage,
			entry_price, exit_price, entry_time, exit_time,
			margin, entry_fee, exit_fee, gross_pnl, net_pnl,
			exit_reason, held_ms
		FROM trades
		WHERE symbol = $1
		ORDER BY seq ASC
	`

	rows, err := l.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query trades by symbol: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrade(row pgx.Row) (*domain.TradeRecord, error) {
	var (
		t      domain.TradeRecord
		side   string
		heldMs int64
	)
	err := row.Scan(
		&t.TradeID, &t.Symbol, &side, &t.Quantity, &t.Leverage,
		&t.EntryPrice, &t.ExitPrice, &t.EntryTime, &t.ExitTime,
		&t.Margin, &t.EntryFee, &t.ExitFee, &t.GrossPnL, &t.NetPnL,
		&t.ExitReason, &heldMs,
	)
	if err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	t.Held = millisDuration(heldMs)
	return &t, nil
}

func scanTrades(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var out []*domain.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return out, nil
}

func millisDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
