// Package engine owns the per-symbol position state machine
// (NONE → OPEN → CLOSED) and the persist-after-mutate discipline: no
// transition is committed until the portfolio snapshot is saved, and every
// consulted decision leaves exactly one audit row.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"perp-trading-lab/internal/clock"
	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/risk"
	"perp-trading-lab/internal/storage"
)

// Entry validation errors, in the order they are checked.
var (
	ErrPositionAlreadyOpen = errors.New("position already open for symbol")
	ErrMissingStopLoss     = errors.New("entry decision missing stop loss")
	ErrInvalidStopLoss     = errors.New("stop loss on wrong side of entry")
	ErrRiskLimitExceeded   = errors.New("implied risk exceeds max risk fraction of equity")
	ErrInsufficientMargin  = errors.New("required margin exceeds free balance")

	// ErrNoOpenPosition is returned when closing a symbol with no position.
	ErrNoOpenPosition = errors.New("no open position for symbol")
)

// Config holds the policy knobs of the engine. Fee rates and risk limits are
// configuration, never hardcoded behavior.
type Config struct {
	StartCapital    float64
	TakerFeeRate    float64 // charged on entry and exit notional (market orders)
	MakerFeeRate    float64 // reserved for resting orders; unused by market fills
	MaxRiskFraction float64 // max |entry-stop|*qty as a fraction of equity
	MinLeverage     int
	MaxLeverage     int
}

// Notifier receives post-persistence trade event notifications. Failures are
// the notifier's problem; the engine never rolls back for one.
type Notifier interface {
	NotifyOpen(ctx context.Context, p *domain.Position)
	NotifyClose(ctx context.Context, t *domain.TradeRecord)
}

// Forwarder mirrors simulated intents to a real venue, best effort.
type Forwarder interface {
	ForwardOpen(ctx context.Context, p *domain.Position) error
	ForwardClose(ctx context.Context, t *domain.TradeRecord) error
}

// Engine executes decisions against the portfolio. It is single-writer: one
// iteration runs to completion before the next begins.
type Engine struct {
	config    Config
	portfolio *domain.Portfolio

	store     storage.PortfolioStore
	trades    storage.TradeLedger
	decisions storage.DecisionLedger
	equity    storage.EquityLedger

	clock     clock.Clock
	notifier  Notifier
	forwarder Forwarder
	logger    *zap.SugaredLogger
}

// Options wires the engine's collaborators. Notifier and Forwarder are
// optional.
type Options struct {
	Config    Config
	Store     storage.PortfolioStore
	Trades    storage.TradeLedger
	Decisions storage.DecisionLedger
	Equity    storage.EquityLedger
	Clock     clock.Clock
	Notifier  Notifier
	Forwarder Forwarder
	Logger    *zap.SugaredLogger
}

// New loads (or initializes) the portfolio and returns a ready engine.
func New(ctx context.Context, opts Options) (*Engine, error) {
	p, err := opts.Store.Load(ctx, opts.Config.StartCapital)
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}
	return &Engine{
		config:    opts.Config,
		portfolio: p,
		store:     opts.Store,
		trades:    opts.Trades,
		decisions: opts.Decisions,
		equity:    opts.Equity,
		clock:     opts.Clock,
		notifier:  opts.Notifier,
		forwarder: opts.Forwarder,
		logger:    opts.Logger,
	}, nil
}

// Portfolio returns a deep copy of the current state.
func (e *Engine) Portfolio() *domain.Portfolio {
	return e.portfolio.Clone()
}

// Position returns the open position for symbol, or nil.
func (e *Engine) Position(symbol string) *domain.Position {
	pos, ok := e.portfolio.Positions[symbol]
	if !ok {
		return nil
	}
	cp := *pos
	return &cp
}

// Apply executes one decision against the portfolio at the snapshot's price.
// Validation failures reject the decision and record the reason; they are
// not errors to the caller. A returned error means persistence failed and
// the iteration must halt.
func (e *Engine) Apply(ctx context.Context, d *domain.Decision, snap *domain.Snapshot) error {
	switch d.Signal {
	case domain.SignalEntry:
		return e.applyEntry(ctx, d, snap)
	case domain.SignalClose:
		return e.applyClose(ctx, d, snap)
	case domain.SignalHold:
		return e.applyHold(ctx, d, snap)
	default:
		return e.recordDecision(ctx, d, snap, false, fmt.Sprintf("unknown signal %q", d.Signal))
	}
}

func (e *Engine) applyEntry(ctx context.Context, d *domain.Decision, snap *domain.Snapshot) error {
	entryPrice := snap.Price

	if reason := e.validateEntry(d, entryPrice); reason != nil {
		if e.logger != nil {
			e.logger.Infow("entry rejected", "symbol", d.Symbol, "reason", reason.Error())
		}
		return e.recordDecision(ctx, d, snap, false, reason.Error())
	}

	margin, err := risk.Margin(d.Quantity, entryPrice, d.Leverage)
	if err != nil {
		return e.recordDecision(ctx, d, snap, false, err.Error())
	}
	entryFee := risk.Fee(d.Quantity*entryPrice, e.config.TakerFeeRate)

	pos := &domain.Position{
		Symbol:       d.Symbol,
		Side:         d.Side,
		EntryPrice:   entryPrice,
		Quantity:     d.Quantity,
		Leverage:     d.Leverage,
		StopLoss:     d.StopLoss,
		TakeProfit:   d.TakeProfit,
		Margin:       margin,
		EntryFee:     entryFee,
		RiskUSD:      d.RiskUSD,
		Invalidation: d.Invalidation,
		OpenedAt:     e.clock.Now(),
	}

	rollback := e.portfolio.Clone()
	e.portfolio.Balance -= margin + entryFee
	e.portfolio.FeesPaid += entryFee
	e.portfolio.Positions[d.Symbol] = pos
	e.portfolio.UpdatedAt = e.clock.Now()

	if err := e.store.Save(ctx, e.portfolio); err != nil {
		e.portfolio = rollback
		return fmt.Errorf("persist open: %w", err)
	}
	if err := e.recordDecision(ctx, d, snap, true, ""); err != nil {
		return err
	}

	if e.logger != nil {
		e.logger.Infow("position opened",
			"symbol", pos.Symbol, "side", pos.Side, "entry", pos.EntryPrice,
			"quantity", pos.Quantity, "leverage", pos.Leverage,
			"stop", pos.StopLoss, "target", pos.TakeProfit, "margin", margin)
	}
	if e.notifier != nil {
		e.notifier.NotifyOpen(ctx, pos)
	}
	if e.forwarder != nil {
		if err := e.forwarder.ForwardOpen(ctx, pos); err != nil && e.logger != nil {
			e.logger.Warnw("order forwarding failed", "symbol", pos.Symbol, "error", err)
		}
	}
	return nil
}

// validateEntry runs the gate checks in contract order and returns the
// rejection, or nil to accept.
func (e *Engine) validateEntry(d *domain.Decision, entryPrice float64) error {
	if _, open := e.portfolio.Positions[d.Symbol]; open {
		return ErrPositionAlreadyOpen
	}

	if d.StopLoss <= 0 {
		return ErrMissingStopLoss
	}
	switch d.Side {
	case domain.SideLong:
		if d.StopLoss >= entryPrice {
			return ErrInvalidStopLoss
		}
		if d.TakeProfit != 0 && d.TakeProfit <= entryPrice {
			return ErrInvalidStopLoss
		}
	case domain.SideShort:
		if d.StopLoss <= entryPrice {
			return ErrInvalidStopLoss
		}
		if d.TakeProfit != 0 && d.TakeProfit >= entryPrice {
			return ErrInvalidStopLoss
		}
	default:
		return domain.ErrInvalidSide
	}

	impliedRisk := abs(entryPrice-d.StopLoss) * d.Quantity
	equity := e.portfolio.Equity(map[string]float64{})
	if impliedRisk > e.config.MaxRiskFraction*equity {
		return ErrRiskLimitExceeded
	}

	margin, err := risk.Margin(d.Quantity, entryPrice, d.Leverage)
	if err != nil {
		return err
	}
	entryFee := risk.Fee(d.Quantity*entryPrice, e.config.TakerFeeRate)
	if margin+entryFee > e.portfolio.FreeBalance() {
		return ErrInsufficientMargin
	}

	if d.Leverage < e.config.MinLeverage || d.Leverage > e.config.MaxLeverage {
		return risk.ErrInvalidLeverage
	}
	return nil
}

func (e *Engine) applyClose(ctx context.Context, d *domain.Decision, snap *domain.Snapshot) error {
	if _, open := e.portfolio.Positions[d.Symbol]; !open {
		return e.recordDecision(ctx, d, snap, false, ErrNoOpenPosition.Error())
	}
	if _, err := e.Close(ctx, d.Symbol, snap.Price, domain.ExitReasonDecision); err != nil {
		return err
	}
	return e.recordDecision(ctx, d, snap, true, "")
}

func (e *Engine) applyHold(ctx context.Context, d *domain.Decision, snap *domain.Snapshot) error {
	return e.recordDecision(ctx, d, snap, true, "")
}

// Close fully closes the open position for symbol at exitPrice, credits the
// balance with margin plus net PnL, and appends the terminal trade record.
// It is used for decision closes, evaluator triggers, and run-end flushes.
func (e *Engine) Close(ctx context.Context, symbol string, exitPrice float64, reason string) (*domain.TradeRecord, error) {
	pos, open := e.portfolio.Positions[symbol]
	if !open {
		return nil, ErrNoOpenPosition
	}

	gross, exitFee, net := risk.RealizedPnL(pos, exitPrice, e.config.TakerFeeRate)
	now := e.clock.Now()

	rec := &domain.TradeRecord{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		Leverage:   pos.Leverage,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		EntryTime:  pos.OpenedAt,
		ExitTime:   now,
		Margin:     pos.Margin,
		EntryFee:   pos.EntryFee,
		ExitFee:    exitFee,
		GrossPnL:   gross,
		NetPnL:     net,
		ExitReason: reason,
		Held:       now.Sub(pos.OpenedAt),
	}
	rec.TradeID = tradeID(rec)

	rollback := e.portfolio.Clone()
	e.portfolio.Balance += pos.Margin + net
	e.portfolio.RealizedPnL += net
	e.portfolio.FeesPaid += exitFee
	delete(e.portfolio.Positions, symbol)
	e.portfolio.UpdatedAt = now

	if err := e.store.Save(ctx, e.portfolio); err != nil {
		e.portfolio = rollback
		return nil, fmt.Errorf("persist close: %w", err)
	}
	if err := e.trades.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("append trade record: %w", err)
	}

	if e.logger != nil {
		e.logger.Infow("position closed",
			"symbol", symbol, "reason", reason, "exit", exitPrice,
			"gross_pnl", gross, "net_pnl", net, "held", rec.Held)
	}
	if e.notifier != nil {
		e.notifier.NotifyClose(ctx, rec)
	}
	if e.forwarder != nil {
		if err := e.forwarder.ForwardClose(ctx, rec); err != nil && e.logger != nil {
			e.logger.Warnw("close forwarding failed", "symbol", symbol, "error", err)
		}
	}
	return rec, nil
}

// MarkEquity appends one equity observation marking open positions at the
// supplied prices.
func (e *Engine) MarkEquity(ctx context.Context, marks map[string]float64) error {
	pt := domain.EquityPoint{
		Timestamp: e.clock.Now(),
		Equity:    e.portfolio.Equity(marks),
	}
	if err := e.equity.Append(ctx, pt); err != nil {
		return fmt.Errorf("append equity point: %w", err)
	}
	return nil
}

// recordDecision appends the audit row every consulted decision produces,
// including rejections and holds.
func (e *Engine) recordDecision(ctx context.Context, d *domain.Decision, snap *domain.Snapshot, accepted bool, rejectReason string) error {
	row := &domain.DecisionRecord{
		Timestamp:     e.clock.Now(),
		Symbol:        d.Symbol,
		Signal:        d.Signal,
		Side:          d.Side,
		Accepted:      accepted,
		RejectReason:  rejectReason,
		Confidence:    d.Confidence,
		Justification: d.Justification,
	}
	if pos, open := e.portfolio.Positions[d.Symbol]; open {
		row.UnrealizedPnL = risk.UnrealizedPnL(pos, snap.Price)
	}
	if err := e.decisions.Append(ctx, row); err != nil {
		return fmt.Errorf("append decision record: %w", err)
	}
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
