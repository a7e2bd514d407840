// Package memory provides in-memory storage implementations used by tests
// and dry runs.
package memory

import (
	"context"
	"sync"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/storage"
)

// PortfolioStore is an in-memory implementation of storage.PortfolioStore.
type PortfolioStore struct {
	mu       sync.RWMutex
	snapshot *domain.Portfolio

	// FailNextSave simulates a persistence failure for the next Save call.
	FailNextSave error
}

// NewPortfolioStore creates an empty in-memory portfolio store.
func NewPortfolioStore() *PortfolioStore {
	return &PortfolioStore{}
}

// Load returns the stored snapshot, initializing a fresh portfolio with
// startCapital when none exists.
func (s *PortfolioStore) Load(_ context.Context, startCapital float64) (*domain.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return domain.NewPortfolio(startCapital), nil
	}
	return s.snapshot.Clone(), nil
}

// Save stores a deep copy of the portfolio.
func (s *PortfolioStore) Save(_ context.Context, p *domain.Portfolio) error {
	if p == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNextSave != nil {
		err := s.FailNextSave
		s.FailNextSave = nil
		return err
	}

	s.snapshot = p.Clone()
	return nil
}

// TradeLedger is an in-memory implementation of storage.TradeLedger.
type TradeLedger struct {
	mu      sync.RWMutex
	records []*domain.TradeRecord
	seen    map[string]struct{}
}

// NewTradeLedger creates an empty in-memory trade ledger.
func NewTradeLedger() *TradeLedger {
	return &TradeLedger{seen: make(map[string]struct{})}
}

// Append adds a terminal trade record, rejecting duplicate trade ids.
func (l *TradeLedger) Append(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.seen[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}
	l.seen[t.TradeID] = struct{}{}

	cp := *t
	l.records = append(l.records, &cp)
	return nil
}

// All returns every record in insertion order.
func (l *TradeLedger) All(_ context.Context) ([]*domain.TradeRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.TradeRecord, len(l.records))
	for i, t := range l.records {
		cp := *t
		out[i] = &cp
	}
	return out, nil
}

// DecisionLedger is an in-memory implementation of storage.DecisionLedger.
type DecisionLedger struct {
	mu      sync.RWMutex
	records []*domain.DecisionRecord
}

// NewDecisionLedger creates an empty in-memory decision ledger.
func NewDecisionLedger() *DecisionLedger {
	return &DecisionLedger{}
}

// Append adds a decision audit row.
func (l *DecisionLedger) Append(_ context.Context, d *domain.DecisionRecord) error {
	if d == nil || d.Symbol == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *d
	l.records = append(l.records, &cp)
	return nil
}

// All returns every row in insertion order.
func (l *DecisionLedger) All(_ context.Context) ([]*domain.DecisionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.DecisionRecord, len(l.records))
	for i, d := range l.records {
		cp := *d
		out[i] = &cp
	}
	return out, nil
}

// EquityLedger is an in-memory implementation of storage.EquityLedger.
type EquityLedger struct {
	mu     sync.RWMutex
	points []domain.EquityPoint
}

// NewEquityLedger creates an empty in-memory equity ledger.
func NewEquityLedger() *EquityLedger {
	return &EquityLedger{}
}

// Append adds one equity observation.
func (l *EquityLedger) Append(_ context.Context, pt domain.EquityPoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.points = append(l.points, pt)
	return nil
}

// All returns the equity curve in insertion order.
func (l *EquityLedger) All(_ context.Context) ([]domain.EquityPoint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.EquityPoint, len(l.points))
	copy(out, l.points)
	return out, nil
}

var (
	_ storage.PortfolioStore = (*PortfolioStore)(nil)
	_ storage.TradeLedger    = (*TradeLedger)(nil)
	_ storage.DecisionLedger = (*DecisionLedger)(nil)
	_ storage.EquityLedger   = (*EquityLedger)(nil)
)
