package domain

import "time"

// Timeframe roles used by the snapshot builder. The execution timeframe
// drives entries and stop/target checks, the structure timeframe tracks
// swing extremes, and the trend timeframe carries the long moving average
// and momentum oscillator.
const (
	TimeframeExecution = "15m"
	TimeframeStructure = "1h"
	TimeframeTrend     = "4h"
)

// IndicatorBar is a kline enriched with the derived indicator columns the
// exit evaluator and decision source consume.
type IndicatorBar struct {
	Kline
	EMA20      float64 `json:"ema20"`
	EMA50      float64 `json:"ema50"`
	RSI14      float64 `json:"rsi14"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	ATR14      float64 `json:"atr14"`
	BBUpper    float64 `json:"bb_upper"`
	BBLower    float64 `json:"bb_lower"`
}

// TimeframeView is the enriched bar series for one timeframe plus the most
// recent tracked swing extremes.
type TimeframeView struct {
	Interval  string         `json:"interval"`
	Bars      []IndicatorBar `json:"bars"`
	SwingHigh float64        `json:"swing_high"`
	SwingLow  float64        `json:"swing_low"`
}

// Last returns the most recent bar of the view, or nil when empty.
func (v *TimeframeView) Last() *IndicatorBar {
	if len(v.Bars) == 0 {
		return nil
	}
	return &v.Bars[len(v.Bars)-1]
}

// Snapshot is the per-symbol market view for one iteration: three-timeframe
// enriched bars plus funding and open-interest context.
type Snapshot struct {
	Symbol       string        `json:"symbol"`
	Timestamp    time.Time     `json:"timestamp"`
	Price        float64       `json:"price"`
	Execution    TimeframeView `json:"execution"`
	Structure    TimeframeView `json:"structure"`
	Trend        TimeframeView `json:"trend"`
	FundingRate  float64       `json:"funding_rate"`
	OpenInterest float64       `json:"open_interest"`
}

// CurrentBar returns the latest execution-timeframe bar, the bar whose
// high/low range is inspected for stop and target crossings.
func (s *Snapshot) CurrentBar() *IndicatorBar {
	return s.Execution.Last()
}
