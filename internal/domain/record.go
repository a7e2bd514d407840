package domain

import "time"

// Exit reason codes recorded in the trade ledger.
const (
	ExitReasonStopLoss       = "sl_hit"
	ExitReasonTakeProfit     = "tp_hit"
	ExitReasonStructureBreak = "structure_break"
	ExitReasonTrendReversal  = "trend_reversal"
	ExitReasonDecision       = "ai_close"
	ExitReasonRunEnd         = "run_end"
)

// TradeRecord is the terminal record appended to the trade-history ledger
// when a position is closed. Exits are always full-close.
type TradeRecord struct {
	TradeID    string        `json:"trade_id"`
	Symbol     string        `json:"symbol"`
	Side       Side          `json:"side"`
	Quantity   float64       `json:"quantity"`
	Leverage   int           `json:"leverage"`
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	Margin     float64       `json:"margin"`
	EntryFee   float64       `json:"entry_fee"`
	ExitFee    float64       `json:"exit_fee"`
	GrossPnL   float64       `json:"gross_pnl"`
	NetPnL     float64       `json:"net_pnl"`
	ExitReason string        `json:"exit_reason"`
	Held       time.Duration `json:"held_ms"`
}

// DecisionRecord is one row of the append-only decision ledger. Every
// consulted decision produces exactly one row, including rejections and
// holds, so no outcome is silent.
type DecisionRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	Symbol        string    `json:"symbol"`
	Signal        Signal    `json:"signal"`
	Side          Side      `json:"side,omitempty"`
	Accepted      bool      `json:"accepted"`
	RejectReason  string    `json:"reject_reason,omitempty"`
	UnrealizedPnL float64   `json:"unrealized_pnl,omitempty"`
	Confidence    int       `json:"confidence,omitempty"`
	Justification string    `json:"justification,omitempty"`
}

// EquityPoint is one observation of the equity curve ledger.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// RunSummary is the terminal record of a backtest run artifact directory.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	Symbols      []string  `json:"symbols"`
	Interval     string    `json:"interval"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	StartCapital float64   `json:"start_capital"`
	FinalEquity  float64   `json:"final_equity"`
	ReturnPct    float64   `json:"return_pct"`
	Sortino      float64   `json:"sortino"`
	Sharpe       float64   `json:"sharpe"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	RealizedPnL  float64   `json:"realized_pnl"`
	FeesPaid     float64   `json:"fees_paid"`
	TradeCount   int       `json:"trade_count"`
	WinCount     int       `json:"win_count"`
	LossCount    int       `json:"loss_count"`
}
