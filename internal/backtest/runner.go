// Package backtest replays the trading loop over historical klines. The
// engine, exit evaluator, and storage run unmodified behind a replay clock
// and a cache-backed exchange, so any live/replay divergence is a bug.
package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"perp-trading-lab/internal/clock"
	"perp-trading-lab/internal/decision"
	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/engine"
	"perp-trading-lab/internal/exits"
	"perp-trading-lab/internal/klinecache"
	"perp-trading-lab/internal/market"
	"perp-trading-lab/internal/risk"
	"perp-trading-lab/internal/storage/file"
)

// warmupBars is how many extra bars before the window start are fetched per
// timeframe so the first simulated bar has a full indicator lookback.
const warmupBars = 110

// Config describes one replay run.
type Config struct {
	Symbols  []string
	Interval string // execution pacing interval, e.g. "15m"
	Start    time.Time
	End      time.Time

	// RunID scopes the artifact directory; empty generates one.
	RunID string
	// OutputDir is the parent of run artifact directories.
	OutputDir string

	Engine        engine.Config
	GuardFraction float64
}

// Runner executes replay runs against a shared kline cache.
type Runner struct {
	cache  *klinecache.Cache
	source decision.Source
	logger *zap.SugaredLogger
}

// NewRunner creates a runner. The source decides; the cache feeds.
func NewRunner(cache *klinecache.Cache, source decision.Source, logger *zap.SugaredLogger) *Runner {
	return &Runner{cache: cache, source: source, logger: logger}
}

// Run replays the window bar by bar and returns the run summary plus the
// artifact directory. Cancellation is honored between iterations only, so a
// stopped run still leaves a consistent artifact.
func (r *Runner) Run(ctx context.Context, cfg Config) (*domain.RunSummary, string, error) {
	step, err := domain.IntervalDuration(cfg.Interval)
	if err != nil {
		return nil, "", err
	}
	if !cfg.End.After(cfg.Start) {
		return nil, "", fmt.Errorf("replay window end %v not after start %v", cfg.End, cfg.Start)
	}

	runID := cfg.RunID
	if runID == "" {
		runID = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	runDir := filepath.Join(cfg.OutputDir, "run-"+runID)
	if _, err := os.Stat(runDir); err == nil {
		return nil, "", fmt.Errorf("run directory %s already exists", runDir)
	}

	store, err := file.New(runDir)
	if err != nil {
		return nil, "", err
	}

	if err := r.preload(ctx, cfg); err != nil {
		return nil, "", err
	}

	replay := clock.NewReplay(cfg.Start)
	hist := market.NewHistorical(r.cache, replay)
	builder := market.NewSnapshotBuilder(hist, replay, r.logger)

	eng, err := engine.New(ctx, engine.Options{
		Config:    cfg.Engine,
		Store:     store,
		Trades:    store,
		Decisions: store.Decisions(),
		Equity:    store.Equity(),
		Clock:     replay,
		Logger:    r.logger,
	})
	if err != nil {
		return nil, "", err
	}

	it := &Iteration{
		Symbols:   cfg.Symbols,
		Builder:   builder,
		Source:    r.source,
		Engine:    eng,
		Evaluator: &exits.Evaluator{GuardFraction: cfg.GuardFraction},
		Logger:    r.logger,
	}

	stepMs := step.Milliseconds()
	startMs := cfg.Start.UnixMilli()
	if rem := startMs % stepMs; rem != 0 {
		startMs += stepMs - rem
	}
	endMs := cfg.End.UnixMilli()

	var lastMarks map[string]float64
	bars := 0
	for barOpen := startMs; barOpen+stepMs <= endMs; barOpen += stepMs {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		default:
		}

		// The iteration runs at the instant the bar closes.
		replay.Set(time.UnixMilli(barOpen + stepMs - 1))

		marks, err := it.Run(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("iteration at %s: %w", replay.Now().Format(time.RFC3339), err)
		}
		if len(marks) > 0 {
			lastMarks = marks
		}
		bars++
	}
	if bars == 0 {
		return nil, "", fmt.Errorf("replay window shorter than one %s bar", cfg.Interval)
	}

	if err := it.Flush(ctx, lastMarks); err != nil {
		return nil, "", err
	}

	summary, err := r.summarize(ctx, runID, cfg, store)
	if err != nil {
		return nil, "", err
	}
	if err := writeSummary(runDir, summary); err != nil {
		return nil, "", err
	}

	if r.logger != nil {
		r.logger.Infow("replay finished",
			"run_id", runID, "bars", bars,
			"final_equity", summary.FinalEquity, "return_pct", summary.ReturnPct,
			"trades", summary.TradeCount)
	}
	return summary, runDir, nil
}

// preload warms the cache for every symbol and timeframe over the window
// plus the indicator lookback, so the replay itself never waits on the
// network mid-run.
func (r *Runner) preload(ctx context.Context, cfg Config) error {
	intervals := []string{domain.TimeframeExecution, domain.TimeframeStructure, domain.TimeframeTrend}
	endMs := cfg.End.UnixMilli()

	for _, symbol := range cfg.Symbols {
		for _, interval := range intervals {
			step, err := domain.IntervalDuration(interval)
			if err != nil {
				return err
			}
			stepMs := step.Milliseconds()
			startMs := cfg.Start.UnixMilli() - warmupBars*stepMs
			startMs -= startMs % stepMs

			if _, err := r.cache.EnsureCoverage(ctx, symbol, interval, startMs, endMs); err != nil {
				return fmt.Errorf("preload %s %s: %w", symbol, interval, err)
			}
		}
	}
	return nil
}

func (r *Runner) summarize(ctx context.Context, runID string, cfg Config, store *file.Store) (*domain.RunSummary, error) {
	trades, err := store.All(ctx)
	if err != nil {
		return nil, err
	}
	curve, err := store.Equity().All(ctx)
	if err != nil {
		return nil, err
	}
	p, err := store.Load(ctx, cfg.Engine.StartCapital)
	if err != nil {
		return nil, err
	}

	finalEquity := p.Equity(nil) // flushed: no open positions remain

	summary := &domain.RunSummary{
		RunID:        runID,
		Symbols:      cfg.Symbols,
		Interval:     cfg.Interval,
		Start:        cfg.Start.UTC(),
		End:          cfg.End.UTC(),
		StartCapital: cfg.Engine.StartCapital,
		FinalEquity:  finalEquity,
		ReturnPct:    (finalEquity - cfg.Engine.StartCapital) / cfg.Engine.StartCapital * 100,
		Sortino:      risk.Sortino(curve, 0),
		MaxDrawdown:  risk.MaxDrawdown(curve),
		RealizedPnL:  p.RealizedPnL,
		FeesPaid:     p.FeesPaid,
		TradeCount:   len(trades),
	}

	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		if t.Margin > 0 {
			returns = append(returns, t.NetPnL/t.Margin)
		}
		if t.NetPnL > 0 {
			summary.WinCount++
		} else {
			summary.LossCount++
		}
	}
	summary.Sharpe = risk.Sharpe(returns)

	return summary, nil
}

func writeSummary(runDir string, s *domain.RunSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "summary.json"), data, 0o644); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}
