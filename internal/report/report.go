// Package report renders a run artifact directory into a human-readable
// Markdown summary: headline metrics, exit reason breakdown, and the full
// trade table.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/storage/file"
	"perp-trading-lab/internal/verification"
)

// Data is everything loaded from one run directory.
type Data struct {
	Summary   *domain.RunSummary
	Trades    []*domain.TradeRecord
	Portfolio *domain.Portfolio
}

// Load reads summary.json, the trade ledger and the portfolio snapshot from
// a run directory.
func Load(ctx context.Context, runDir string) (*Data, error) {
	raw, err := os.ReadFile(filepath.Join(runDir, "summary.json"))
	if err != nil {
		return nil, fmt.Errorf("read run summary: %w", err)
	}
	var summary domain.RunSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("decode run summary: %w", err)
	}

	store, err := file.New(runDir)
	if err != nil {
		return nil, err
	}
	trades, err := store.All(ctx)
	if err != nil {
		return nil, err
	}
	p, err := store.Load(ctx, summary.StartCapital)
	if err != nil {
		return nil, err
	}

	return &Data{Summary: &summary, Trades: trades, Portfolio: p}, nil
}

// RenderMarkdown renders the run data, with an optional reconciliation
// report appended.
func RenderMarkdown(d *Data, v *verification.Report) string {
	var sb strings.Builder
	s := d.Summary

	sb.WriteString(fmt.Sprintf("# Run %s\n\n", s.RunID))
	sb.WriteString(fmt.Sprintf("Symbols: %s | Interval: %s\n\n",
		strings.Join(s.Symbols, ", "), s.Interval))
	sb.WriteString(fmt.Sprintf("Window: %s — %s\n\n",
		s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339)))

	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Start Capital | %.2f |\n", s.StartCapital))
	sb.WriteString(fmt.Sprintf("| Final Equity | %.2f |\n", s.FinalEquity))
	sb.WriteString(fmt.Sprintf("| Return | %.2f%% |\n", s.ReturnPct))
	sb.WriteString(fmt.Sprintf("| Realized PnL | %.2f |\n", s.RealizedPnL))
	sb.WriteString(fmt.Sprintf("| Fees Paid | %.2f |\n", s.FeesPaid))
	sb.WriteString(fmt.Sprintf("| Sortino | %.4f |\n", s.Sortino))
	sb.WriteString(fmt.Sprintf("| Sharpe (per trade) | %.4f |\n", s.Sharpe))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", s.MaxDrawdown*100))
	sb.WriteString(fmt.Sprintf("| Trades | %d (%d wins / %d losses) |\n",
		s.TradeCount, s.WinCount, s.LossCount))
	sb.WriteString("\n")

	sb.WriteString("## Exit Reasons\n\n")
	if len(d.Trades) > 0 {
		sb.WriteString("| Reason | Count | Net PnL |\n")
		sb.WriteString("|--------|-------|--------|\n")
		for _, row := range exitBreakdown(d.Trades) {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.2f |\n", row.reason, row.count, row.netPnL))
		}
	} else {
		sb.WriteString("No trades closed in this run.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Trades\n\n")
	if len(d.Trades) > 0 {
		sb.WriteString("| Symbol | Side | Qty | Lev | Entry | Exit | Net PnL | Reason | Held |\n")
		sb.WriteString("|--------|------|-----|-----|-------|------|---------|--------|------|\n")
		for _, t := range d.Trades {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.4f | %dx | %.2f | %.2f | %.2f | %s | %s |\n",
				t.Symbol, t.Side, t.Quantity, t.Leverage,
				t.EntryPrice, t.ExitPrice, t.NetPnL, t.ExitReason,
				t.Held.Round(time.Minute)))
		}
	} else {
		sb.WriteString("No trades closed in this run.\n")
	}
	sb.WriteString("\n")

	if len(d.Portfolio.Positions) > 0 {
		sb.WriteString("## Open Positions\n\n")
		sb.WriteString("| Symbol | Side | Qty | Lev | Entry | Stop | Target |\n")
		sb.WriteString("|--------|------|-----|-----|-------|------|--------|\n")
		for _, symbol := range sortedSymbols(d.Portfolio.Positions) {
			pos := d.Portfolio.Positions[symbol]
			sb.WriteString(fmt.Sprintf("| %s | %s | %.4f | %dx | %.2f | %.2f | %.2f |\n",
				pos.Symbol, pos.Side, pos.Quantity, pos.Leverage,
				pos.EntryPrice, pos.StopLoss, pos.TakeProfit))
		}
		sb.WriteString("\n")
	}

	if v != nil {
		sb.WriteString("## Ledger Reconciliation\n\n")
		if v.OK() {
			sb.WriteString(fmt.Sprintf("**PASS** — %d trades replay to balance %.2f.\n",
				v.TradesChecked, v.ExpectedBalance))
		} else {
			sb.WriteString("**FAIL**\n\n")
			for _, issue := range v.Issues {
				sb.WriteString(fmt.Sprintf("- %s\n", issue))
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

type exitRow struct {
	reason string
	count  int
	netPnL float64
}

func exitBreakdown(trades []*domain.TradeRecord) []exitRow {
	byReason := make(map[string]*exitRow)
	for _, t := range trades {
		row, ok := byReason[t.ExitReason]
		if !ok {
			row = &exitRow{reason: t.ExitReason}
			byReason[t.ExitReason] = row
		}
		row.count++
		row.netPnL += t.NetPnL
	}

	out := make([]exitRow, 0, len(byReason))
	for _, row := range byReason {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].reason < out[j].reason })
	return out
}

func sortedSymbols(positions map[string]*domain.Position) []string {
	out := make([]string, 0, len(positions))
	for symbol := range positions {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
