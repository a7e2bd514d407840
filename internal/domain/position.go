package domain

import (
	"errors"
	"time"
)

// Side is the direction of a leveraged position.
type Side string

// Side constants.
const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position validation errors.
var (
	ErrInvalidSide     = errors.New("side must be long or short")
	ErrInvalidBracket  = errors.New("stop and target do not bracket entry for side")
	ErrNonPositiveSize = errors.New("quantity and entry price must be positive")
)

// Position is a single open leveraged exposure to one symbol.
// At most one position per symbol is open at any time.
type Position struct {
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	EntryPrice   float64   `json:"entry_price"`
	Quantity     float64   `json:"quantity"`
	Leverage     int       `json:"leverage"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	Margin       float64   `json:"margin"`
	EntryFee     float64   `json:"entry_fee"`
	RiskUSD      float64   `json:"risk_usd"`
	Invalidation string    `json:"invalidation,omitempty"`
	OpenedAt     time.Time `json:"opened_at"`
}

// Notional returns quantity * entry price.
func (p *Position) Notional() float64 {
	return p.Quantity * p.EntryPrice
}

// StopDistance returns the absolute distance between entry and stop-loss.
func (p *Position) StopDistance() float64 {
	d := p.EntryPrice - p.StopLoss
	if d < 0 {
		return -d
	}
	return d
}

// Validate checks structural invariants: positive size, a known side,
// and stop/target bracketing entry consistent with the side
// (long: stop < entry < target; short: target < entry < stop).
func (p *Position) Validate() error {
	if p.Quantity <= 0 || p.EntryPrice <= 0 {
		return ErrNonPositiveSize
	}
	switch p.Side {
	case SideLong:
		if p.StopLoss >= p.EntryPrice {
			return ErrInvalidBracket
		}
		if p.TakeProfit != 0 && p.TakeProfit <= p.EntryPrice {
			return ErrInvalidBracket
		}
	case SideShort:
		if p.StopLoss <= p.EntryPrice {
			return ErrInvalidBracket
		}
		if p.TakeProfit != 0 && p.TakeProfit >= p.EntryPrice {
			return ErrInvalidBracket
		}
	default:
		return ErrInvalidSide
	}
	return nil
}
