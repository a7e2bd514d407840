package domain

import "time"

// Portfolio is the canonical mutable account state. The balance excludes
// margin committed to open positions; equity is always recomputed from
// balance, margins and unrealized PnL, never stored on its own.
type Portfolio struct {
	StartCapital float64              `json:"start_capital"`
	Balance      float64              `json:"balance"`
	Positions    map[string]*Position `json:"positions"`
	RealizedPnL  float64              `json:"realized_pnl"`
	FeesPaid     float64              `json:"fees_paid"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// NewPortfolio initializes an empty portfolio with the given starting capital.
func NewPortfolio(startCapital float64) *Portfolio {
	return &Portfolio{
		StartCapital: startCapital,
		Balance:      startCapital,
		Positions:    make(map[string]*Position),
	}
}

// Equity returns balance + committed margin + unrealized PnL of all open
// positions, marking each position at the price supplied in marks. Positions
// without a mark contribute their margin only (their unrealized PnL is
// unknowable without a price, so they are carried at entry).
func (p *Portfolio) Equity(marks map[string]float64) float64 {
	equity := p.Balance
	for symbol, pos := range p.Positions {
		equity += pos.Margin
		mark, ok := marks[symbol]
		if !ok {
			continue
		}
		diff := mark - pos.EntryPrice
		if pos.Side == SideShort {
			diff = -diff
		}
		equity += diff * pos.Quantity
	}
	return equity
}

// FreeBalance returns the balance available for new margin commitments.
func (p *Portfolio) FreeBalance() float64 {
	return p.Balance
}

// Clone returns a deep copy so callers can snapshot state without racing
// subsequent mutations.
func (p *Portfolio) Clone() *Portfolio {
	cp := *p
	cp.Positions = make(map[string]*Position, len(p.Positions))
	for sym, pos := range p.Positions {
		dup := *pos
		cp.Positions[sym] = &dup
	}
	return &cp
}
