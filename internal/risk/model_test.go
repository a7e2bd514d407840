package risk

import (
	"errors"
	"math"
	"testing"

	"perp-trading-lab/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFee(t *testing.T) {
	if got := Fee(4500, 0.000275); !almostEqual(got, 1.2375) {
		t.Errorf("Fee(4500, 0.000275) = %f, want 1.2375", got)
	}
	if got := Fee(1000, 0); got != 0 {
		t.Errorf("zero rate should charge nothing, got %f", got)
	}
}

func TestMargin(t *testing.T) {
	got, err := Margin(1.5, 3000, 5)
	if err != nil {
		t.Fatalf("Margin failed: %v", err)
	}
	if !almostEqual(got, 900) {
		t.Errorf("Margin(1.5, 3000, 5) = %f, want 900", got)
	}
}

func TestMargin_InvalidLeverage(t *testing.T) {
	for _, lev := range []int{0, -1} {
		if _, err := Margin(1, 100, lev); !errors.Is(err, ErrInvalidLeverage) {
			t.Errorf("leverage %d: expected ErrInvalidLeverage, got %v", lev, err)
		}
	}
}

func TestUnrealizedPnL_Long(t *testing.T) {
	pos := &domain.Position{Side: domain.SideLong, EntryPrice: 3000, Quantity: 1.5}

	if got := UnrealizedPnL(pos, 3100); !almostEqual(got, 150) {
		t.Errorf("long uPnL at 3100 = %f, want 150", got)
	}
	if got := UnrealizedPnL(pos, 2880); !almostEqual(got, -180) {
		t.Errorf("long uPnL at 2880 = %f, want -180", got)
	}
}

func TestUnrealizedPnL_Short(t *testing.T) {
	pos := &domain.Position{Side: domain.SideShort, EntryPrice: 3000, Quantity: 2}

	if got := UnrealizedPnL(pos, 2900); !almostEqual(got, 200) {
		t.Errorf("short uPnL at 2900 = %f, want 200", got)
	}
	if got := UnrealizedPnL(pos, 3050); !almostEqual(got, -100) {
		t.Errorf("short uPnL at 3050 = %f, want -100", got)
	}
}

func TestRealizedPnL(t *testing.T) {
	pos := &domain.Position{
		Side:       domain.SideLong,
		EntryPrice: 3000,
		Quantity:   1.5,
		EntryFee:   1.2375, // 4500 notional * 0.000275
	}

	gross, exitFee, net := RealizedPnL(pos, 2880, 0.000275)

	if !almostEqual(gross, -180) {
		t.Errorf("gross = %f, want -180", gross)
	}
	wantExitFee := 1.5 * 2880 * 0.000275
	if !almostEqual(exitFee, wantExitFee) {
		t.Errorf("exit fee = %f, want %f", exitFee, wantExitFee)
	}
	if !almostEqual(net, -180-pos.EntryFee-wantExitFee) {
		t.Errorf("net = %f, want %f", net, -180-pos.EntryFee-wantExitFee)
	}
}
