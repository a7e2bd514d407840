// Package risk holds the pure margin, fee and PnL arithmetic shared by the
// execution engine and the backtest harness. Nothing here touches state.
package risk

import (
	"errors"

	"perp-trading-lab/internal/domain"
)

// ErrInvalidLeverage is returned for leverage below 1 or outside configured bounds.
var ErrInvalidLeverage = errors.New("invalid leverage")

// Fee returns the fee charged on a notional at the given rate. Entry and
// exit legs use it identically with independently configured rates.
func Fee(notional, rate float64) float64 {
	return notional * rate
}

// Margin returns quantity * price / leverage.
func Margin(quantity, price float64, leverage int) (float64, error) {
	if leverage < 1 {
		return 0, ErrInvalidLeverage
	}
	return quantity * price / float64(leverage), nil
}

// UnrealizedPnL returns the mark-to-market PnL of an open position before fees.
func UnrealizedPnL(p *domain.Position, currentPrice float64) float64 {
	diff := currentPrice - p.EntryPrice
	if p.Side == domain.SideShort {
		diff = -diff
	}
	return diff * p.Quantity
}

// RealizedPnL returns the PnL of closing the full position at exitPrice,
// net of the entry fee already paid and the exit fee charged at exitFeeRate.
func RealizedPnL(p *domain.Position, exitPrice, exitFeeRate float64) (gross, exitFee, net float64) {
	gross = UnrealizedPnL(p, exitPrice)
	exitFee = Fee(p.Quantity*exitPrice, exitFeeRate)
	net = gross - p.EntryFee - exitFee
	return gross, exitFee, net
}
