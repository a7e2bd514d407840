package storage

import (
	"context"

	"go.uber.org/zap"

	"perp-trading-lab/internal/domain"
)

// MirroredTradeLedger appends to a canonical primary ledger and best-effort
// mirrors the row to a secondary one. Primary failures propagate; mirror
// failures are logged and swallowed so a database outage never blocks
// trading. Reads always come from the primary.
type MirroredTradeLedger struct {
	Primary TradeLedger
	Mirror  TradeLedger
	Logger  *zap.SugaredLogger
}

var _ TradeLedger = (*MirroredTradeLedger)(nil)

func (m *MirroredTradeLedger) Append(ctx context.Context, t *domain.TradeRecord) error {
	if err := m.Primary.Append(ctx, t); err != nil {
		return err
	}
	if m.Mirror != nil {
		if err := m.Mirror.Append(ctx, t); err != nil && m.Logger != nil {
			m.Logger.Warnw("trade mirror append failed", "trade_id", t.TradeID, "error", err)
		}
	}
	return nil
}

func (m *MirroredTradeLedger) All(ctx context.Context) ([]*domain.TradeRecord, error) {
	return m.Primary.All(ctx)
}

// MirroredDecisionLedger is the decision ledger counterpart.
type MirroredDecisionLedger struct {
	Primary DecisionLedger
	Mirror  DecisionLedger
	Logger  *zap.SugaredLogger
}

var _ DecisionLedger = (*MirroredDecisionLedger)(nil)

func (m *MirroredDecisionLedger) Append(ctx context.Context, d *domain.DecisionRecord) error {
	if err := m.Primary.Append(ctx, d); err != nil {
		return err
	}
	if m.Mirror != nil {
		if err := m.Mirror.Append(ctx, d); err != nil && m.Logger != nil {
			m.Logger.Warnw("decision mirror append failed", "symbol", d.Symbol, "error", err)
		}
	}
	return nil
}

func (m *MirroredDecisionLedger) All(ctx context.Context) ([]*domain.DecisionRecord, error) {
	return m.Primary.All(ctx)
}

// MirroredEquityLedger is the equity curve counterpart.
type MirroredEquityLedger struct {
	Primary EquityLedger
	Mirror  EquityLedger
	Logger  *zap.SugaredLogger
}

var _ EquityLedger = (*MirroredEquityLedger)(nil)

func (m *MirroredEquityLedger) Append(ctx context.Context, pt domain.EquityPoint) error {
	if err := m.Primary.Append(ctx, pt); err != nil {
		return err
	}
	if m.Mirror != nil {
		if err := m.Mirror.Append(ctx, pt); err != nil && m.Logger != nil {
			m.Logger.Warnw("equity mirror append failed", "error", err)
		}
	}
	return nil
}

func (m *MirroredEquityLedger) All(ctx context.Context) ([]domain.EquityPoint, error) {
	return m.Primary.All(ctx)
}
