package risk

import (
	"math"
	"time"

	"perp-trading-lab/internal/domain"
)

// Sortino computes the annualized downside-deviation-adjusted return of an
// equity curve against a per-year risk-free rate. Only below-target period
// returns enter the denominator; with no downside samples the ratio is 0,
// never NaN. Annualization uses the average spacing of the curve's points.
func Sortino(curve []domain.EquityPoint, riskFreeRate float64) float64 {
	returns, periodsPerYear := periodReturns(curve)
	if len(returns) == 0 || periodsPerYear == 0 {
		return 0
	}

	target := riskFreeRate / periodsPerYear
	mean := meanOf(returns)

	downsideSq := 0.0
	downsideCount := 0
	for _, r := range returns {
		if r < target {
			d := r - target
			downsideSq += d * d
			downsideCount++
		}
	}
	if downsideCount == 0 {
		return 0
	}

	downsideDev := math.Sqrt(downsideSq / float64(len(returns)))
	if downsideDev == 0 {
		return 0
	}

	return (mean - target) / downsideDev * math.Sqrt(periodsPerYear)
}

// Sharpe computes the standard-deviation-adjusted mean of per-trade returns.
// Trade returns carry no time basis, so the ratio is reported per trade
// rather than per year. Returns 0 when there are fewer than two samples or
// no variance.
func Sharpe(tradeReturns []float64) float64 {
	if len(tradeReturns) < 2 {
		return 0
	}
	mean := meanOf(tradeReturns)
	sd := sampleStddev(tradeReturns, mean)
	if sd == 0 {
		return 0
	}
	return mean / sd
}

// MaxDrawdown returns the worst peak-to-trough decline of the equity curve
// as a fraction of the peak. 0 for curves that never decline.
func MaxDrawdown(curve []domain.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	maxDD := 0.0
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			dd := (peak - pt.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// periodReturns derives simple returns between consecutive equity points and
// the number of such periods per year implied by their average spacing.
func periodReturns(curve []domain.EquityPoint) ([]float64, float64) {
	if len(curve) < 2 {
		return nil, 0
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}

	span := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp)
	if span <= 0 {
		return returns, 0
	}
	avgSpacing := span / time.Duration(len(curve)-1)
	periodsPerYear := float64(365*24*time.Hour) / float64(avgSpacing)

	return returns, periodsPerYear
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStddev uses the n-1 denominator.
func sampleStddev(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}
