package risk

import (
	"math"
	"testing"
	"time"

	"perp-trading-lab/internal/domain"
)

func curveAt(start time.Time, spacing time.Duration, equities ...float64) []domain.EquityPoint {
	curve := make([]domain.EquityPoint, len(equities))
	for i, eq := range equities {
		curve[i] = domain.EquityPoint{Timestamp: start.Add(time.Duration(i) * spacing), Equity: eq}
	}
	return curve
}

func TestSortino_NoDownsideReturnsZero(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := curveAt(start, time.Hour, 10000, 10100, 10200, 10350)

	if got := Sortino(curve, 0); got != 0 {
		t.Errorf("monotone curve should yield 0, got %f", got)
	}
}

func TestSortino_NegativeForLosingCurve(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := curveAt(start, time.Hour, 10000, 9800, 9500, 9100)

	got := Sortino(curve, 0)
	if got >= 0 {
		t.Errorf("losing curve should yield negative ratio, got %f", got)
	}
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Errorf("ratio must be finite, got %f", got)
	}
}

func TestSortino_TooFewPoints(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := Sortino(curveAt(start, time.Hour, 10000), 0); got != 0 {
		t.Errorf("single point should yield 0, got %f", got)
	}
	if got := Sortino(nil, 0); got != 0 {
		t.Errorf("empty curve should yield 0, got %f", got)
	}
}

func TestSharpe(t *testing.T) {
	tests := []struct {
		name    string
		returns []float64
		want    float64
	}{
		{"empty", nil, 0},
		{"single sample", []float64{0.05}, 0},
		{"no variance", []float64{0.02, 0.02, 0.02}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sharpe(tt.returns); got != tt.want {
				t.Errorf("Sharpe(%v) = %f, want %f", tt.returns, got, tt.want)
			}
		})
	}

	// mean 0.01, sample stddev 0.02 → 0.5
	got := Sharpe([]float64{0.03, -0.01})
	want := 0.01 / sampleStddev([]float64{0.03, -0.01}, 0.01)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Sharpe = %f, want %f", got, want)
	}
}

func TestMaxDrawdown(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		equities []float64
		want     float64
	}{
		{"empty", nil, 0},
		{"monotone up", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 120, 90, 130}, 0.25},
		{"final trough", []float64{100, 80}, 0.20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curve := curveAt(start, time.Hour, tt.equities...)
			if got := MaxDrawdown(curve); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("MaxDrawdown = %f, want %f", got, tt.want)
			}
		})
	}
}
