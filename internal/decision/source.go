// Package decision produces trading decisions for the execution engine. The
// production source is an OpenAI-compatible chat model; replay and tests can
// substitute anything satisfying Source.
package decision

import (
	"context"

	"perp-trading-lab/internal/domain"
)

// Source yields one decision per symbol per iteration from a market snapshot
// and the current portfolio. Implementations must return a fully validated
// decision or an error; the engine never repairs a half-formed decision.
type Source interface {
	Decide(ctx context.Context, snap *domain.Snapshot, portfolio *domain.Portfolio) (*domain.Decision, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, snap *domain.Snapshot, portfolio *domain.Portfolio) (*domain.Decision, error)

// Decide implements Source.
func (f Func) Decide(ctx context.Context, snap *domain.Snapshot, portfolio *domain.Portfolio) (*domain.Decision, error) {
	return f(ctx, snap, portfolio)
}

// Hold is a Source that always holds; useful as a safe default and in
// harness tests that only exercise rule-based exits.
var Hold = Func(func(_ context.Context, snap *domain.Snapshot, _ *domain.Portfolio) (*domain.Decision, error) {
	return &domain.Decision{Symbol: snap.Symbol, Signal: domain.SignalHold}, nil
})
