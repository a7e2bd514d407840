package postgres

import (
	"context"
	"fmt"
	"time"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/storage"
)

// DecisionLedger implements storage.DecisionLedger on PostgreSQL.
type DecisionLedger struct {
	pool *Pool
}

// NewDecisionLedger creates a DecisionLedger over pool.
func NewDecisionLedger(pool *Pool) *DecisionLedger {
	return &DecisionLedger{pool: pool}
}

var _ storage.DecisionLedger = (*DecisionLedger)(nil)

// Append inserts one decision audit row.
func (l *DecisionLedger) Append(ctx context.Context, d *domain.DecisionRecord) error {
	if d == nil || d.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO decisions (
			ts, symbol, signal, side, accepted,
			reject_reason, unrealized_pnl, confidence, justification
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := l.pool.Exec(ctx, query,
		d.Timestamp, d.Symbol, string(d.Signal), string(d.Side), d.Accepted,
		d.RejectReason, d.UnrealizedPnL, d.Confidence, d.Justification,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// All returns the full ledger in insertion order.
func (l *DecisionLedger) All(ctx context.Context) ([]*domain.DecisionRecord, error) {
	query := `
		SELECT ts, symbol, signal, side, accepted,
		       reject_reason, unrealized_pnl, confidence, justification
		FROM decisions
		ORDER BY seq ASC
	`

	rows, err := l.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []*domain.DecisionRecord
	for rows.Next() {
		var (
			d            domain.DecisionRecord
			signal, side string
		)
		err := rows.Scan(
			&d.Timestamp, &d.Symbol, &signal, &side, &d.Accepted,
			&d.RejectReason, &d.UnrealizedPnL, &d.Confidence, &d.Justification,
		)
		if err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		d.Signal = domain.Signal(signal)
		d.Side = domain.Side(side)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision rows: %w", err)
	}
	return out, nil
}

// Since returns rows with ts >= from, oldest first.
func (l *DecisionLedger) Since(ctx context.Context, from time.Time) ([]*domain.DecisionRecord, error) {
	query := `
		SELECT ts, symbol, signal, side, accepted,
		       reject_reason, unrealized_pnl, confidence, justification
		FROM decisions
		WHERE ts >= $1
		ORDER BY seq ASC
	`

	rows, err := l.pool.Query(ctx, query, from)
	if err != nil {
		return nil, fmt.Errorf("query decisions since: %w", err)
	}
	defer rows.Close()

	var out []*domain.DecisionRecord
	for rows.Next() {
		var (
			d            domain.DecisionRecord
			signal, side string
		)
		err := rows.Scan(
			&d.Timestamp, &d.Symbol, &signal, &side, &d.Accepted,
			&d.RejectReason, &d.UnrealizedPnL, &d.Confidence, &d.Justification,
		)
		if err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		d.Signal = domain.Signal(signal)
		d.Side = domain.Side(side)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision rows: %w", err)
	}
	return out, nil
}
