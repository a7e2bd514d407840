package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/storage/file"
	"perp-trading-lab/internal/verification"
)

func writeRunDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	summary := &domain.RunSummary{
		RunID:        "abc123",
		Symbols:      []string{"ETHUSDT"},
		Interval:     "15m",
		Start:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		StartCapital: 10000,
		FinalEquity:  10150.5,
		ReturnPct:    1.505,
		TradeCount:   2,
		WinCount:     1,
		LossCount:    1,
	}
	data, err := json.Marshal(summary)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := file.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	trades := []*domain.TradeRecord{
		{
			TradeID: "t1", Symbol: "ETHUSDT", Side: domain.SideLong,
			Quantity: 1.5, Leverage: 5, EntryPrice: 3000, ExitPrice: 3150,
			NetPnL: 222.46, ExitReason: domain.ExitReasonTakeProfit,
			Held: 45 * time.Minute,
		},
		{
			TradeID: "t2", Symbol: "ETHUSDT", Side: domain.SideShort,
			Quantity: 1.0, Leverage: 3, EntryPrice: 3100, ExitPrice: 3150,
			NetPnL: -51.72, ExitReason: domain.ExitReasonStopLoss,
			Held: 2 * time.Hour,
		},
	}
	for _, tr := range trades {
		if err := store.Append(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	p := domain.NewPortfolio(10000)
	p.Balance = 10170.74
	if err := store.Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad_ReadsAllArtifacts(t *testing.T) {
	dir := writeRunDir(t)

	d, err := Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if d.Summary.RunID != "abc123" {
		t.Errorf("run id = %s", d.Summary.RunID)
	}
	if len(d.Trades) != 2 {
		t.Errorf("trades = %d", len(d.Trades))
	}
	if d.Portfolio.Balance != 10170.74 {
		t.Errorf("balance = %f", d.Portfolio.Balance)
	}
}

func TestLoad_MissingSummaryFails(t *testing.T) {
	if _, err := Load(context.Background(), t.TempDir()); err == nil {
		t.Error("expected error for directory without summary.json")
	}
}

func TestRenderMarkdown_IncludesMetricsAndTrades(t *testing.T) {
	d, err := Load(context.Background(), writeRunDir(t))
	if err != nil {
		t.Fatal(err)
	}

	md := RenderMarkdown(d, nil)

	for _, want := range []string{
		"# Run abc123",
		"| Final Equity | 10150.50 |",
		"| Return | 1.51% |",
		"tp_hit",
		"sl_hit",
		"| ETHUSDT | long | 1.5000 | 5x | 3000.00 | 3150.00 | 222.46 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("rendered markdown missing %q", want)
		}
	}
	if strings.Contains(md, "Ledger Reconciliation") {
		t.Error("reconciliation section rendered without a verification report")
	}
}

func TestRenderMarkdown_ExitBreakdownAggregates(t *testing.T) {
	d := &Data{
		Summary:   &domain.RunSummary{RunID: "r", Symbols: []string{"X"}},
		Portfolio: domain.NewPortfolio(1000),
		Trades: []*domain.TradeRecord{
			{TradeID: "a", Symbol: "X", ExitReason: domain.ExitReasonStopLoss, NetPnL: -10},
			{TradeID: "b", Symbol: "X", ExitReason: domain.ExitReasonStopLoss, NetPnL: -15},
			{TradeID: "c", Symbol: "X", ExitReason: domain.ExitReasonTakeProfit, NetPnL: 40},
		},
	}

	md := RenderMarkdown(d, nil)
	if !strings.Contains(md, "| sl_hit | 2 | -25.00 |") {
		t.Errorf("stop loss row not aggregated:\n%s", md)
	}
	if !strings.Contains(md, "| tp_hit | 1 | 40.00 |") {
		t.Errorf("take profit row missing:\n%s", md)
	}
}

func TestRenderMarkdown_VerificationSections(t *testing.T) {
	d := &Data{
		Summary:   &domain.RunSummary{RunID: "r", Symbols: []string{"X"}},
		Portfolio: domain.NewPortfolio(1000),
	}

	pass := &verification.Report{TradesChecked: 3, ExpectedBalance: 1000}
	md := RenderMarkdown(d, pass)
	if !strings.Contains(md, "**PASS**") {
		t.Errorf("passing reconciliation not rendered:\n%s", md)
	}

	fail := &verification.Report{Issues: []string{"balance mismatch: ledger replay 1.0, snapshot 2.0"}}
	md = RenderMarkdown(d, fail)
	if !strings.Contains(md, "**FAIL**") || !strings.Contains(md, "balance mismatch") {
		t.Errorf("failing reconciliation not rendered:\n%s", md)
	}
}

func TestRenderMarkdown_OpenPositions(t *testing.T) {
	p := domain.NewPortfolio(1000)
	p.Positions["BTCUSDT"] = &domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideLong,
		Quantity: 0.1, Leverage: 10, EntryPrice: 60000, StopLoss: 58000, TakeProfit: 65000,
	}
	d := &Data{Summary: &domain.RunSummary{RunID: "r", Symbols: []string{"BTCUSDT"}}, Portfolio: p}

	md := RenderMarkdown(d, nil)
	if !strings.Contains(md, "## Open Positions") {
		t.Error("open positions section missing")
	}
	if !strings.Contains(md, "| BTCUSDT | long | 0.1000 | 10x | 60000.00 | 58000.00 | 65000.00 |") {
		t.Errorf("open position row missing:\n%s", md)
	}
}
