// Package main replays the trading loop over a historical window and writes
// a run artifact directory with the portfolio, ledgers and summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"perp-trading-lab/internal/backtest"
	"perp-trading-lab/internal/config"
	"perp-trading-lab/internal/decision"
	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/engine"
	"perp-trading-lab/internal/klinecache"
	"perp-trading-lab/internal/market"
)

const defaultBinanceRESTURL = "https://fapi.binance.com"

func main() {
	configDir := flag.String("config", ".", "Directory holding config.yaml")
	symbolsFlag := flag.String("symbols", "", "Comma-separated symbols (default: from config)")
	startFlag := flag.String("start", "", "Window start, RFC3339 or YYYY-MM-DD (required)")
	endFlag := flag.String("end", "", "Window end, RFC3339 or YYYY-MM-DD (required)")
	runID := flag.String("run-id", "", "Run identifier (default: generated)")
	outputDir := flag.String("output-dir", "data/backtests", "Parent directory for run artifacts")
	hold := flag.Bool("hold", false, "Use the always-hold source instead of the configured model (exit rules only)")
	outputJSON := flag.Bool("json", false, "Print the run summary as JSON")
	flag.Parse()

	if err := run(*configDir, *symbolsFlag, *startFlag, *endFlag, *runID, *outputDir, *hold, *outputJSON); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir, symbolsFlag, startFlag, endFlag, runID, outputDir string, hold, outputJSON bool) error {
	if startFlag == "" || endFlag == "" {
		return fmt.Errorf("--start and --end are required")
	}
	start, err := parseTime(startFlag)
	if err != nil {
		return fmt.Errorf("parse --start: %w", err)
	}
	end, err := parseTime(endFlag)
	if err != nil {
		return fmt.Errorf("parse --end: %w", err)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	symbols := cfg.Trading.Symbols
	if symbolsFlag != "" {
		symbols = strings.Split(symbolsFlag, ",")
		for i := range symbols {
			symbols[i] = strings.ToUpper(strings.TrimSpace(symbols[i]))
		}
	}

	zlog, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restURL := cfg.Exchange.RESTURL
	if restURL == "" {
		restURL = defaultBinanceRESTURL
	}
	cache, err := klinecache.New(cfg.Exchange.CacheDir, market.NewBinance(restURL, logger), logger)
	if err != nil {
		return err
	}

	var source decision.Source = decision.Hold
	switch {
	case hold:
		logger.Infow("using hold source, only rule-based exits will trade")
	case cfg.Decision.Endpoint != "":
		source = decision.NewLLM(decision.LLMConfig{
			Endpoint:    cfg.Decision.Endpoint,
			APIKey:      cfg.Decision.APIKey,
			Model:       cfg.Decision.Model,
			Temperature: cfg.Decision.Temperature,
			Timeout:     cfg.Decision.Timeout,
		}, logger)
	default:
		logger.Warnw("no decision endpoint configured, falling back to hold source")
	}

	runner := backtest.NewRunner(cache, source, logger)
	summary, runDir, err := runner.Run(ctx, backtest.Config{
		Symbols:   symbols,
		Interval:  domain.TimeframeExecution,
		Start:     start,
		End:       end,
		RunID:     runID,
		OutputDir: outputDir,
		Engine: engine.Config{
			StartCapital:    cfg.Trading.StartCapital,
			TakerFeeRate:    cfg.Trading.TakerFeeRate,
			MakerFeeRate:    cfg.Trading.MakerFeeRate,
			MaxRiskFraction: cfg.Trading.MaxRiskFraction,
			MinLeverage:     cfg.Trading.MinLeverage,
			MaxLeverage:     cfg.Trading.MaxLeverage,
		},
		GuardFraction: cfg.Trading.GuardFraction,
	})
	if err != nil {
		return err
	}

	if outputJSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printSummary(summary, runDir)
	return nil
}

// parseTime accepts RFC3339 or a bare date interpreted as midnight UTC.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func printSummary(s *domain.RunSummary, runDir string) {
	fmt.Println()
	fmt.Println("=== Backtest Summary ===")
	fmt.Printf("Run ID:         %s\n", s.RunID)
	fmt.Printf("Artifacts:      %s\n", runDir)
	fmt.Printf("Symbols:        %s\n", strings.Join(s.Symbols, ", "))
	fmt.Printf("Window:         %s — %s\n", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
	fmt.Println()
	fmt.Printf("Start Capital:  %.2f\n", s.StartCapital)
	fmt.Printf("Final Equity:   %.2f\n", s.FinalEquity)
	fmt.Printf("Return:         %.2f%%\n", s.ReturnPct)
	fmt.Printf("Realized PnL:   %.2f\n", s.RealizedPnL)
	fmt.Printf("Fees Paid:      %.2f\n", s.FeesPaid)
	fmt.Println()
	fmt.Printf("Sortino:        %.4f\n", s.Sortino)
	fmt.Printf("Sharpe:         %.4f (per trade)\n", s.Sharpe)
	fmt.Printf("Max Drawdown:   %.2f%%\n", s.MaxDrawdown*100)
	fmt.Printf("Trades:         %d (%d wins / %d losses)\n", s.TradeCount, s.WinCount, s.LossCount)
}
