package storage

import (
	"context"

	"perp-trading-lab/internal/domain"
)

// PortfolioStore owns durable persistence of the canonical portfolio
// snapshot. Every mutation elsewhere in the system must be followed by Save
// before the mutation is considered committed.
type PortfolioStore interface {
	// Load deserializes the portfolio. If no snapshot exists it initializes
	// one with startCapital and empty positions; this is the only
	// implicit-creation path.
	Load(ctx context.Context, startCapital float64) (*domain.Portfolio, error)

	// Save atomically persists the full portfolio snapshot.
	Save(ctx context.Context, p *domain.Portfolio) error
}

// TradeLedger is the append-only trade-history ledger. Insertion order is
// significant.
type TradeLedger interface {
	// Append adds a terminal trade record. Returns ErrDuplicateKey if the
	// trade_id was already appended.
	Append(ctx context.Context, t *domain.TradeRecord) error

	// All returns every record in insertion order.
	All(ctx context.Context) ([]*domain.TradeRecord, error)
}

// DecisionLedger is the append-only decision audit ledger.
type DecisionLedger interface {
	Append(ctx context.Context, d *domain.DecisionRecord) error
	All(ctx context.Context) ([]*domain.DecisionRecord, error)
}

// EquityLedger is the append-only equity curve ledger.
type EquityLedger interface {
	Append(ctx context.Context, pt domain.EquityPoint) error
	All(ctx context.Context) ([]domain.EquityPoint, error)
}
