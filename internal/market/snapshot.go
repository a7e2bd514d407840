package market

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"perp-trading-lab/internal/clock"
	"perp-trading-lab/internal/domain"
)

// snapshotKlineLimit is how many klines each timeframe view carries. It must
// cover indicator warm-up plus enough tail for the decision source.
const snapshotKlineLimit = 100

// SnapshotBuilder assembles the per-symbol multi-timeframe market view. The
// same builder runs live and in replay; only the Exchange behind it differs.
type SnapshotBuilder struct {
	exchange Exchange
	clock    clock.Clock
	logger   *zap.SugaredLogger
}

// NewSnapshotBuilder creates a builder over the given exchange and clock.
func NewSnapshotBuilder(exchange Exchange, clk clock.Clock, logger *zap.SugaredLogger) *SnapshotBuilder {
	return &SnapshotBuilder{exchange: exchange, clock: clk, logger: logger}
}

// Build fetches and enriches all three timeframes for symbol. Kline fetch or
// indicator failures abort the snapshot; funding and open interest are
// context only and degrade to zero on error.
func (b *SnapshotBuilder) Build(ctx context.Context, symbol string) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		Symbol:    symbol,
		Timestamp: b.clock.Now(),
	}

	views := []struct {
		interval string
		dst      *domain.TimeframeView
	}{
		{domain.TimeframeExecution, &snap.Execution},
		{domain.TimeframeStructure, &snap.Structure},
		{domain.TimeframeTrend, &snap.Trend},
	}
	for _, v := range views {
		klines, err := b.exchange.GetKlines(ctx, symbol, v.interval, snapshotKlineLimit)
		if err != nil {
			return nil, fmt.Errorf("fetch %s %s klines: %w", symbol, v.interval, err)
		}
		view, err := BuildView(v.interval, klines)
		if err != nil {
			return nil, fmt.Errorf("enrich %s %s klines: %w", symbol, v.interval, err)
		}
		*v.dst = view
	}

	if last := snap.Execution.Last(); last != nil {
		snap.Price = last.Close
	}

	if funding, err := b.exchange.GetFundingRate(ctx, symbol); err != nil {
		if b.logger != nil {
			b.logger.Warnw("funding rate unavailable", "symbol", symbol, "error", err)
		}
	} else {
		snap.FundingRate = funding.Rate
	}

	if oi, err := b.exchange.GetOpenInterest(ctx, symbol, domain.TimeframeStructure, 1); err != nil {
		if b.logger != nil {
			b.logger.Warnw("open interest unavailable", "symbol", symbol, "error", err)
		}
	} else if len(oi) > 0 {
		snap.OpenInterest = oi[len(oi)-1].Sum
	}

	return snap, nil
}
