package storage_test

import (
	"context"
	"errors"
	"testing"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/storage"
	"perp-trading-lab/internal/storage/memory"
)

type failingTradeLedger struct{}

func (failingTradeLedger) Append(context.Context, *domain.TradeRecord) error {
	return errors.New("mirror down")
}
func (failingTradeLedger) All(context.Context) ([]*domain.TradeRecord, error) {
	return nil, errors.New("mirror down")
}

func TestMirroredTradeLedger_WritesBoth(t *testing.T) {
	ctx := context.Background()
	primary := memory.NewTradeLedger()
	mirror := memory.NewTradeLedger()

	m := &storage.MirroredTradeLedger{Primary: primary, Mirror: mirror}
	if err := m.Append(ctx, &domain.TradeRecord{TradeID: "t1", Symbol: "ETHUSDT"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	for name, ledger := range map[string]storage.TradeLedger{"primary": primary, "mirror": mirror} {
		all, err := ledger.All(ctx)
		if err != nil {
			t.Fatalf("%s read failed: %v", name, err)
		}
		if len(all) != 1 {
			t.Errorf("%s has %d trades, want 1", name, len(all))
		}
	}
}

func TestMirroredTradeLedger_MirrorFailureSwallowed(t *testing.T) {
	ctx := context.Background()
	primary := memory.NewTradeLedger()

	m := &storage.MirroredTradeLedger{Primary: primary, Mirror: failingTradeLedger{}}
	if err := m.Append(ctx, &domain.TradeRecord{TradeID: "t1", Symbol: "ETHUSDT"}); err != nil {
		t.Fatalf("mirror failure leaked: %v", err)
	}

	all, err := m.All(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("primary has %d trades, want 1", len(all))
	}
}

func TestMirroredTradeLedger_PrimaryFailurePropagates(t *testing.T) {
	m := &storage.MirroredTradeLedger{Primary: failingTradeLedger{}, Mirror: memory.NewTradeLedger()}
	err := m.Append(context.Background(), &domain.TradeRecord{TradeID: "t1", Symbol: "ETHUSDT"})
	if err == nil {
		t.Fatal("primary failure not propagated")
	}
}

func TestMirroredDecisionAndEquity_NilMirrorIsNoop(t *testing.T) {
	ctx := context.Background()

	d := &storage.MirroredDecisionLedger{Primary: memory.NewDecisionLedger()}
	if err := d.Append(ctx, &domain.DecisionRecord{Symbol: "ETHUSDT", Signal: domain.SignalHold}); err != nil {
		t.Fatalf("decision append failed: %v", err)
	}

	e := &storage.MirroredEquityLedger{Primary: memory.NewEquityLedger()}
	if err := e.Append(ctx, domain.EquityPoint{Equity: 10000}); err != nil {
		t.Fatalf("equity append failed: %v", err)
	}

	curve, err := e.All(ctx)
	if err != nil || len(curve) != 1 {
		t.Errorf("equity curve = %v, %v", curve, err)
	}
}
