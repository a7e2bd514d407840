// Package main renders a run artifact directory into a Markdown report,
// optionally reconciling the trade ledger against the portfolio snapshot
// first.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"perp-trading-lab/internal/report"
	"perp-trading-lab/internal/verification"
)

func main() {
	runDir := flag.String("run-dir", "", "Run artifact directory (required)")
	outPath := flag.String("out", "", "Output file (default: REPORT.md inside the run directory, '-' for stdout)")
	verify := flag.Bool("verify", true, "Reconcile the trade ledger against the portfolio snapshot")
	flag.Parse()

	if *runDir == "" {
		fmt.Fprintln(os.Stderr, "report: --run-dir is required")
		os.Exit(1)
	}

	if err := run(*runDir, *outPath, *verify); err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(1)
	}
}

func run(runDir, outPath string, verify bool) error {
	ctx := context.Background()

	data, err := report.Load(ctx, runDir)
	if err != nil {
		return err
	}

	var v *verification.Report
	if verify {
		v = verification.Verify(data.Portfolio, data.Trades, data.Summary.StartCapital)
	}

	md := report.RenderMarkdown(data, v)

	switch outPath {
	case "-":
		fmt.Print(md)
	case "":
		outPath = filepath.Join(runDir, "REPORT.md")
		fallthrough
	default:
		if err := os.WriteFile(outPath, []byte(md), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("Report written to %s\n", outPath)
	}

	// A reconciliation failure is an artifact integrity problem; surface it
	// in the exit code, not just the report body.
	if v != nil && !v.OK() {
		return fmt.Errorf("ledger reconciliation failed with %d issue(s)", len(v.Issues))
	}
	return nil
}
