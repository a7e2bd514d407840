// Package verification replays a trade ledger from starting capital and
// reconciles the result against the persisted portfolio snapshot. It reads
// ledgers only; it never mutates a run artifact.
package verification

import (
	"fmt"
	"math"

	"perp-trading-lab/internal/domain"
)

// tolerance absorbs float64 accumulation noise, not accounting errors.
const tolerance = 1e-6

// Report is the outcome of one reconciliation pass.
type Report struct {
	TradesChecked int      `json:"trades_checked"`
	Issues        []string `json:"issues,omitempty"`

	ExpectedBalance float64 `json:"expected_balance"`
	ActualBalance   float64 `json:"actual_balance"`
	ExpectedPnL     float64 `json:"expected_pnl"`
	ExpectedFees    float64 `json:"expected_fees"`
}

// OK reports whether the ledger and snapshot reconcile.
func (r *Report) OK() bool {
	return len(r.Issues) == 0
}

func (r *Report) flag(format string, args ...any) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
}

// Verify replays trades in ledger order against startCapital and checks the
// portfolio snapshot's balance, realized PnL and fee totals against the
// replayed values. Each trade is also checked for internal consistency
// before it is applied.
func Verify(p *domain.Portfolio, trades []*domain.TradeRecord, startCapital float64) *Report {
	r := &Report{TradesChecked: len(trades)}

	balance := startCapital
	realized := 0.0
	fees := 0.0

	seen := make(map[string]int, len(trades))
	for i, t := range trades {
		if prev, dup := seen[t.TradeID]; dup {
			r.flag("trade %d duplicates trade %d (id %s)", i, prev, t.TradeID)
		}
		seen[t.TradeID] = i

		checkTrade(r, i, t)

		// Each closed trade's lifecycle nets to: margin out at open plus
		// entry fee, margin back at close plus net PnL.
		balance += t.NetPnL - t.EntryFee
		realized += t.NetPnL
		fees += t.EntryFee + t.ExitFee
	}

	// Positions still open hold their margin and entry fee out of balance
	// and have contributed nothing to realized PnL yet.
	for symbol, pos := range p.Positions {
		if pos.Margin <= 0 {
			r.flag("open position %s has non-positive margin %f", symbol, pos.Margin)
		}
		balance -= pos.Margin + pos.EntryFee
		fees += pos.EntryFee
	}

	r.ExpectedBalance = balance
	r.ActualBalance = p.Balance
	r.ExpectedPnL = realized
	r.ExpectedFees = fees

	if !near(balance, p.Balance) {
		r.flag("balance mismatch: ledger replay %.8f, snapshot %.8f", balance, p.Balance)
	}
	if !near(realized, p.RealizedPnL) {
		r.flag("realized pnl mismatch: ledger %.8f, snapshot %.8f", realized, p.RealizedPnL)
	}
	if !near(fees, p.FeesPaid) {
		r.flag("fees mismatch: ledger %.8f, snapshot %.8f", fees, p.FeesPaid)
	}
	if p.StartCapital != startCapital {
		r.flag("start capital mismatch: snapshot %.8f, expected %.8f", p.StartCapital, startCapital)
	}

	return r
}

// checkTrade validates one trade record's internal arithmetic.
func checkTrade(r *Report, i int, t *domain.TradeRecord) {
	if t.Quantity <= 0 {
		r.flag("trade %d (%s): non-positive quantity %f", i, t.TradeID, t.Quantity)
	}
	if t.Leverage < 1 {
		r.flag("trade %d (%s): leverage %d below 1", i, t.TradeID, t.Leverage)
	}
	if t.ExitTime.Before(t.EntryTime) {
		r.flag("trade %d (%s): exit %v before entry %v", i, t.TradeID, t.ExitTime, t.EntryTime)
	}

	gross := (t.ExitPrice - t.EntryPrice) * t.Quantity
	if t.Side == domain.SideShort {
		gross = -gross
	}
	if !near(gross, t.GrossPnL) {
		r.flag("trade %d (%s): gross pnl %.8f, recomputed %.8f", i, t.TradeID, t.GrossPnL, gross)
	}

	net := t.GrossPnL - t.EntryFee - t.ExitFee
	if !near(net, t.NetPnL) {
		r.flag("trade %d (%s): net pnl %.8f, recomputed %.8f", i, t.TradeID, t.NetPnL, net)
	}

	if t.Leverage >= 1 {
		margin := t.Quantity * t.EntryPrice / float64(t.Leverage)
		if !near(margin, t.Margin) {
			r.flag("trade %d (%s): margin %.8f, recomputed %.8f", i, t.TradeID, t.Margin, margin)
		}
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}
