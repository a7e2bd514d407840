// Package exits evaluates rule-based close triggers for open positions.
// It is pure: the evaluator decides, the engine executes.
package exits

import (
	"perp-trading-lab/internal/domain"
)

// Trigger is a close instruction: the reason code recorded in the trade
// ledger and the price the close executes at.
type Trigger struct {
	Reason string
	Price  float64
}

// Evaluator applies the exit rules in fixed precedence. GuardFraction
// configures the proximity guard: when price sits within that fraction of
// the stop distance from the stop level, only the stop or target itself may
// close the position.
type Evaluator struct {
	GuardFraction float64
}

// Evaluate returns the first matching close trigger for pos, or nil to keep
// holding. Precedence: stop/target crossing on the execution bar, then
// structure break on the intermediate timeframe, then trend reversal on the
// highest timeframe. The same evaluation runs live and in replay.
func (e *Evaluator) Evaluate(pos *domain.Position, snap *domain.Snapshot) *Trigger {
	bar := snap.CurrentBar()
	if bar == nil {
		return nil
	}

	// 1. Stop-loss / take-profit on the bar's high-low range. The fill is
	// modeled at the trigger level, not the bar close. When both levels sit
	// inside one bar the stop wins: the conservative resolution.
	if t := stopTargetTrigger(pos, bar); t != nil {
		return t
	}

	if e.guarded(pos, snap.Price) {
		return nil
	}

	// 2. Structure break: execution-relevant close beyond the tracked swing
	// extreme on the intermediate timeframe.
	if t := structureBreakTrigger(pos, snap); t != nil {
		return t
	}

	// 3. Trend reversal: close beyond the slow average on the highest
	// timeframe with the momentum histogram flipping against the position.
	return trendReversalTrigger(pos, snap)
}

func stopTargetTrigger(pos *domain.Position, bar *domain.IndicatorBar) *Trigger {
	switch pos.Side {
	case domain.SideLong:
		if bar.Low <= pos.StopLoss {
			return &Trigger{Reason: domain.ExitReasonStopLoss, Price: pos.StopLoss}
		}
		if pos.TakeProfit != 0 && bar.High >= pos.TakeProfit {
			return &Trigger{Reason: domain.ExitReasonTakeProfit, Price: pos.TakeProfit}
		}
	case domain.SideShort:
		if bar.High >= pos.StopLoss {
			return &Trigger{Reason: domain.ExitReasonStopLoss, Price: pos.StopLoss}
		}
		if pos.TakeProfit != 0 && bar.Low <= pos.TakeProfit {
			return &Trigger{Reason: domain.ExitReasonTakeProfit, Price: pos.TakeProfit}
		}
	}
	return nil
}

// guarded reports whether price is inside the proximity band around the
// stop: within GuardFraction of the stop distance from the stop level.
func (e *Evaluator) guarded(pos *domain.Position, price float64) bool {
	if e.GuardFraction <= 0 {
		return false
	}
	band := e.GuardFraction * pos.StopDistance()
	return abs(price-pos.StopLoss) <= band
}

func structureBreakTrigger(pos *domain.Position, snap *domain.Snapshot) *Trigger {
	last := snap.Structure.Last()
	if last == nil {
		return nil
	}

	switch pos.Side {
	case domain.SideLong:
		if snap.Structure.SwingLow != 0 && last.Close < snap.Structure.SwingLow {
			return &Trigger{Reason: domain.ExitReasonStructureBreak, Price: snap.Price}
		}
	case domain.SideShort:
		if snap.Structure.SwingHigh != 0 && last.Close > snap.Structure.SwingHigh {
			return &Trigger{Reason: domain.ExitReasonStructureBreak, Price: snap.Price}
		}
	}
	return nil
}

func trendReversalTrigger(pos *domain.Position, snap *domain.Snapshot) *Trigger {
	bars := snap.Trend.Bars
	if len(bars) < 2 {
		return nil
	}
	last, prev := bars[len(bars)-1], bars[len(bars)-2]
	if last.EMA50 == 0 {
		return nil
	}

	switch pos.Side {
	case domain.SideLong:
		if last.Close < last.EMA50 && prev.MACDHist >= 0 && last.MACDHist < 0 {
			return &Trigger{Reason: domain.ExitReasonTrendReversal, Price: snap.Price}
		}
	case domain.SideShort:
		if last.Close > last.EMA50 && prev.MACDHist <= 0 && last.MACDHist > 0 {
			return &Trigger{Reason: domain.ExitReasonTrendReversal, Price: snap.Price}
		}
	}
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
