package market

import (
	"errors"

	"github.com/markcheno/go-talib"

	"perp-trading-lab/internal/domain"
)

// Indicator periods. These match what the decision prompt and exit evaluator
// expect; changing them silently changes trade semantics.
const (
	emaFastPeriod   = 20
	emaSlowPeriod   = 50
	rsiPeriod       = 14
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
	atrPeriod       = 14
	bbandsPeriod    = 20
	bbandsDeviation = 2

	// swingLookback is how many bars on each side a candle must dominate to
	// count as a swing extreme.
	swingLookback = 2
)

// MinIndicatorBars is the minimum series length for a fully warmed-up
// indicator set. EMA50 is the slowest component.
const MinIndicatorBars = emaSlowPeriod + 10

// ErrInsufficientHistory is returned when too few klines were supplied to
// warm up the indicator set.
var ErrInsufficientHistory = errors.New("insufficient kline history for indicators")

// EnrichKlines computes the full indicator set over a kline series and
// returns one IndicatorBar per input kline. Bars before warm-up carry zero
// indicator values; callers should only act on the tail of the series.
func EnrichKlines(klines []domain.Kline) ([]domain.IndicatorBar, error) {
	if len(klines) < MinIndicatorBars {
		return nil, ErrInsufficientHistory
	}

	n := len(klines)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, k := range klines {
		closes[i] = k.Close
		highs[i] = k.High
		lows[i] = k.Low
	}

	emaFast := talib.Ema(closes, emaFastPeriod)
	emaSlow := talib.Ema(closes, emaSlowPeriod)
	rsi := talib.Rsi(closes, rsiPeriod)
	macd, signal, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	atr := talib.Atr(highs, lows, closes, atrPeriod)
	bbUpper, _, bbLower := talib.BBands(closes, bbandsPeriod, bbandsDeviation, bbandsDeviation, talib.SMA)

	bars := make([]domain.IndicatorBar, n)
	for i, k := range klines {
		bars[i] = domain.IndicatorBar{
			Kline:      k,
			EMA20:      emaFast[i],
			EMA50:      emaSlow[i],
			RSI14:      rsi[i],
			MACD:       macd[i],
			MACDSignal: signal[i],
			MACDHist:   hist[i],
			ATR14:      atr[i],
			BBUpper:    bbUpper[i],
			BBLower:    bbLower[i],
		}
	}
	return bars, nil
}

// SwingExtremes returns the most recent confirmed swing high and swing low
// of the series. A swing high is a bar whose high strictly exceeds the highs
// of swingLookback bars on both sides; swing lows are symmetric. The still
// forming last bars cannot confirm a swing, so extremes always lag by at
// least swingLookback bars. Returns zeros when no swing has formed.
func SwingExtremes(bars []domain.IndicatorBar) (swingHigh, swingLow float64) {
	for i := len(bars) - 1 - swingLookback; i >= swingLookback; i-- {
		if swingHigh == 0 && isSwingHigh(bars, i) {
			swingHigh = bars[i].High
		}
		if swingLow == 0 && isSwingLow(bars, i) {
			swingLow = bars[i].Low
		}
		if swingHigh != 0 && swingLow != 0 {
			break
		}
	}
	return swingHigh, swingLow
}

func isSwingHigh(bars []domain.IndicatorBar, i int) bool {
	for d := 1; d <= swingLookback; d++ {
		if bars[i].High <= bars[i-d].High || bars[i].High <= bars[i+d].High {
			return false
		}
	}
	return true
}

func isSwingLow(bars []domain.IndicatorBar, i int) bool {
	for d := 1; d <= swingLookback; d++ {
		if bars[i].Low >= bars[i-d].Low || bars[i].Low >= bars[i+d].Low {
			return false
		}
	}
	return true
}

// BuildView enriches a kline series and wraps it in a TimeframeView with
// swing extremes tracked.
func BuildView(interval string, klines []domain.Kline) (domain.TimeframeView, error) {
	bars, err := EnrichKlines(klines)
	if err != nil {
		return domain.TimeframeView{}, err
	}
	high, low := SwingExtremes(bars)
	return domain.TimeframeView{
		Interval:  interval,
		Bars:      bars,
		SwingHigh: high,
		SwingLow:  low,
	}, nil
}
