package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"perp-trading-lab/internal/decision"
	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/engine"
	"perp-trading-lab/internal/exits"
	"perp-trading-lab/internal/market"
)

// Iteration is one full trading cycle over a set of symbols: build
// snapshots, evaluate rule-based exits, consult the decision source, execute,
// and mark equity. The live loop and the replay harness both run exactly
// this function; only the clock and the exchange behind it differ.
type Iteration struct {
	Symbols   []string
	Builder   *market.SnapshotBuilder
	Source    decision.Source
	Engine    *engine.Engine
	Evaluator *exits.Evaluator
	Logger    *zap.SugaredLogger
}

// Run executes one iteration and returns the prices each symbol was marked
// at. Collaborator failures (snapshot build, decision source) skip the
// affected symbol; positions are left untouched rather than closed at a
// guessed price. A non-nil error is a persistence failure and must halt the
// run.
func (it *Iteration) Run(ctx context.Context) (map[string]float64, error) {
	marks := make(map[string]float64, len(it.Symbols))

	for _, symbol := range it.Symbols {
		snap, err := it.Builder.Build(ctx, symbol)
		if err != nil {
			if it.Logger != nil {
				it.Logger.Warnw("skipping symbol, snapshot unavailable", "symbol", symbol, "error", err)
			}
			continue
		}
		marks[symbol] = snap.Price

		// Rule-based exits run before a fresh decision is consulted, every
		// iteration, whether or not the decision source is reachable.
		if pos := it.Engine.Position(symbol); pos != nil {
			if trig := it.Evaluator.Evaluate(pos, snap); trig != nil {
				if _, err := it.Engine.Close(ctx, symbol, trig.Price, trig.Reason); err != nil {
					return nil, fmt.Errorf("close %s (%s): %w", symbol, trig.Reason, err)
				}
				// The position is gone; the decision source still gets its
				// say on the flat symbol next iteration, not this one.
				continue
			}
		}

		d, err := it.Source.Decide(ctx, snap, it.Engine.Portfolio())
		if err != nil {
			if it.Logger != nil {
				it.Logger.Warnw("skipping symbol, decision unavailable", "symbol", symbol, "error", err)
			}
			continue
		}
		if err := it.Engine.Apply(ctx, d, snap); err != nil {
			return nil, fmt.Errorf("apply decision %s: %w", symbol, err)
		}
	}

	if len(marks) > 0 {
		if err := it.Engine.MarkEquity(ctx, marks); err != nil {
			return nil, err
		}
	}
	return marks, nil
}

// Flush force-closes every open position at its last known mark with the
// run-end reason. Used when a replay window ends.
func (it *Iteration) Flush(ctx context.Context, marks map[string]float64) error {
	p := it.Engine.Portfolio()
	for symbol := range p.Positions {
		mark, ok := marks[symbol]
		if !ok {
			// Without a price the position cannot be honestly closed.
			return fmt.Errorf("no mark to flush %s", symbol)
		}
		if _, err := it.Engine.Close(ctx, symbol, mark, domain.ExitReasonRunEnd); err != nil {
			return fmt.Errorf("flush %s: %w", symbol, err)
		}
	}
	return nil
}
