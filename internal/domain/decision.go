package domain

// Signal is the action requested by the decision source.
type Signal string

// Signal constants.
const (
	SignalEntry Signal = "entry"
	SignalHold  Signal = "hold"
	SignalClose Signal = "close"
)

// Decision is the transient structured output of the decision source for one
// symbol. It is never persisted as entity state; only its effect (a position
// mutation or a logged hold) is persisted.
type Decision struct {
	Symbol        string  `json:"symbol"`
	Signal        Signal  `json:"signal"`
	Side          Side    `json:"side,omitempty"`
	Quantity      float64 `json:"quantity,omitempty"`
	Leverage      int     `json:"leverage,omitempty"`
	StopLoss      float64 `json:"stop_loss,omitempty"`
	TakeProfit    float64 `json:"take_profit,omitempty"`
	Confidence    int     `json:"confidence,omitempty"`
	RiskUSD       float64 `json:"risk_usd,omitempty"`
	Invalidation  string  `json:"invalidation,omitempty"`
	Justification string  `json:"justification,omitempty"`
}
