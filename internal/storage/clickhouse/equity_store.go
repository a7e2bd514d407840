package clickhouse

import (
	"context"
	"fmt"
	"time"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/storage"
)

// EquityStore implements storage.EquityLedger on ClickHouse, scoped to one
// run so curves from different runs never interleave.
type EquityStore struct {
	conn  *Conn
	runID string
}

// NewEquityStore creates an EquityStore bound to runID.
func NewEquityStore(conn *Conn, runID string) *EquityStore {
	return &EquityStore{conn: conn, runID: runID}
}

var _ storage.EquityLedger = (*EquityStore)(nil)

// Append inserts one equity observation for this run.
func (s *EquityStore) Append(ctx context.Context, pt domain.EquityPoint) error {
	query := `INSERT INTO equity_timeseries (run_id, ts, equity) VALUES (?, ?, ?)`
	if err := s.conn.Exec(ctx, query, s.runID, pt.Timestamp, pt.Equity); err != nil {
		return fmt.Errorf("insert equity point: %w", err)
	}
	return nil
}

// AppendBulk inserts many observations in one batch.
func (s *EquityStore) AppendBulk(ctx context.Context, points []domain.EquityPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO equity_timeseries (run_id, ts, equity)`)
	if err != nil {
		return fmt.Errorf("prepare equity batch: %w", err)
	}
	for _, pt := range points {
		if err := batch.Append(s.runID, pt.Timestamp, pt.Equity); err != nil {
			return fmt.Errorf("append to equity batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send equity batch: %w", err)
	}
	return nil
}

// All returns this run's equity curve ordered by timestamp.
func (s *EquityStore) All(ctx context.Context) ([]domain.EquityPoint, error) {
	return s.curve(ctx, s.runID)
}

// Curve returns the equity curve of an arbitrary run, for cross-run
// comparison queries.
func (s *EquityStore) Curve(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	return s.curve(ctx, runID)
}

func (s *EquityStore) curve(ctx context.Context, runID string) ([]domain.EquityPoint, error) {
	query := `
		SELECT ts, equity
		FROM equity_timeseries
		WHERE run_id = ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query equity curve: %w", err)
	}
	defer rows.Close()

	var out []domain.EquityPoint
	for rows.Next() {
		var (
			ts     time.Time
			equity float64
		)
		if err := rows.Scan(&ts, &equity); err != nil {
			return nil, fmt.Errorf("scan equity row: %w", err)
		}
		out = append(out, domain.EquityPoint{Timestamp: ts, Equity: equity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity rows: %w", err)
	}
	return out, nil
}
