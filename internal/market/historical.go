package market

import (
	"context"
	"fmt"

	"perp-trading-lab/internal/clock"
	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/klinecache"
)

// Historical serves klines from the disk cache as they would have looked at
// the replay clock's current instant: only bars fully closed by then are
// visible. It satisfies Exchange so the snapshot builder, engine, and exit
// evaluator run the same code path as live.
//
// Funding rate and open interest have no cached history, so they degrade to
// zero; the snapshot builder treats both as optional context.
type Historical struct {
	cache *klinecache.Cache
	clock clock.Clock
}

// NewHistorical creates a cache-backed exchange view driven by clk.
func NewHistorical(cache *klinecache.Cache, clk clock.Clock) *Historical {
	return &Historical{cache: cache, clock: clk}
}

// GetKlines returns the limit most recent bars closed at or before the
// clock's now, oldest first.
func (h *Historical) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	step, err := domain.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	stepMs := step.Milliseconds()
	nowMs := h.clock.Now().UnixMilli()

	// Fetch one extra slot so a bar straddling now can be dropped without
	// shorting the result.
	startMs := nowMs - int64(limit+1)*stepMs
	startMs -= startMs % stepMs
	endMs := nowMs + stepMs

	klines, err := h.cache.EnsureCoverage(ctx, symbol, interval, startMs, endMs)
	if err != nil {
		return nil, err
	}

	closed := klines[:0:0]
	for _, k := range klines {
		if k.CloseTime <= nowMs {
			closed = append(closed, k)
		}
	}
	if len(closed) == 0 {
		return nil, fmt.Errorf("%w: %s %s at %d", ErrNoData, symbol, interval, nowMs)
	}
	if len(closed) > limit {
		closed = closed[len(closed)-limit:]
	}
	return closed, nil
}

// GetHistoricalKlines serves the range from the cache, fetching gaps through
// the cache's fetcher when present.
func (h *Historical) GetHistoricalKlines(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]domain.Kline, error) {
	return h.cache.EnsureCoverage(ctx, symbol, interval, startMs, endMs)
}

// GetFundingRate has no historical source; it reports a zero rate at the
// clock's now.
func (h *Historical) GetFundingRate(_ context.Context, symbol string) (FundingRate, error) {
	return FundingRate{Symbol: symbol, FundingTime: h.clock.Now().UnixMilli()}, nil
}

// GetOpenInterest has no historical source and returns an empty history.
func (h *Historical) GetOpenInterest(_ context.Context, _, _ string, _ int) ([]OpenInterest, error) {
	return nil, nil
}

var _ Exchange = (*Historical)(nil)
