// Package main runs the live trading loop: on each bar interval it builds
// market snapshots, evaluates rule-based exits, consults the decision
// source, and executes against the simulated portfolio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"perp-trading-lab/internal/backtest"
	"perp-trading-lab/internal/clock"
	"perp-trading-lab/internal/config"
	"perp-trading-lab/internal/decision"
	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/engine"
	"perp-trading-lab/internal/exits"
	"perp-trading-lab/internal/forward"
	"perp-trading-lab/internal/market"
	"perp-trading-lab/internal/notify"
	"perp-trading-lab/internal/observability"
	"perp-trading-lab/internal/storage"
	chstore "perp-trading-lab/internal/storage/clickhouse"
	"perp-trading-lab/internal/storage/file"
	"perp-trading-lab/internal/storage/migrations"
	pgstore "perp-trading-lab/internal/storage/postgres"
)

const defaultBinanceRESTURL = "https://fapi.binance.com"

func main() {
	configDir := flag.String("config", ".", "Directory holding config.yaml")
	runOnce := flag.Bool("once", false, "Run a single iteration and exit")
	flag.Parse()

	if err := run(*configDir, *runOnce); err != nil {
		fmt.Fprintf(os.Stderr, "trader: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string, runOnce bool) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
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
	exchange := market.NewBinance(restURL, logger)
	builder := market.NewSnapshotBuilder(exchange, clock.Real{}, logger)

	var source decision.Source = decision.Hold
	if cfg.Decision.Endpoint != "" {
		source = decision.NewLLM(decision.LLMConfig{
			Endpoint:    cfg.Decision.Endpoint,
			APIKey:      cfg.Decision.APIKey,
			Model:       cfg.Decision.Model,
			Temperature: cfg.Decision.Temperature,
			Timeout:     cfg.Decision.Timeout,
		}, logger)
	} else {
		logger.Warnw("no decision endpoint configured, holding on every symbol")
	}

	store, err := file.New(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	var (
		trades    storage.TradeLedger    = store
		decisions storage.DecisionLedger = store.Decisions()
		equity    storage.EquityLedger   = store.Equity()
	)
	if cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return err
		}
		trades = &storage.MirroredTradeLedger{Primary: store, Mirror: pgstore.NewTradeLedger(pool), Logger: logger}
		decisions = &storage.MirroredDecisionLedger{Primary: store.Decisions(), Mirror: pgstore.NewDecisionLedger(pool), Logger: logger}
		logger.Infow("postgres ledger mirror enabled")
	}
	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return err
		}
		equity = &storage.MirroredEquityLedger{Primary: store.Equity(), Mirror: chstore.NewEquityStore(conn, "live"), Logger: logger}
		logger.Infow("clickhouse equity mirror enabled")
	}

	var notifier engine.Notifier = notify.Noop{}
	if cfg.Notify.TelegramToken != "" {
		notifier = notify.NewTelegram("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, logger)
	}
	var forwarder engine.Forwarder
	if cfg.Forward.Endpoint != "" {
		forwarder = forward.NewHTTP(cfg.Forward.Endpoint, logger)
	}

	eng, err := engine.New(ctx, engine.Options{
		Config: engine.Config{
			StartCapital:    cfg.Trading.StartCapital,
			TakerFeeRate:    cfg.Trading.TakerFeeRate,
			MakerFeeRate:    cfg.Trading.MakerFeeRate,
			MaxRiskFraction: cfg.Trading.MaxRiskFraction,
			MinLeverage:     cfg.Trading.MinLeverage,
			MaxLeverage:     cfg.Trading.MaxLeverage,
		},
		Store:     store,
		Trades:    trades,
		Decisions: decisions,
		Equity:    equity,
		Clock:     clock.Real{},
		Notifier:  notifier,
		Forwarder: forwarder,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	it := &backtest.Iteration{
		Symbols:   cfg.Trading.Symbols,
		Builder:   builder,
		Source:    source,
		Engine:    eng,
		Evaluator: &exits.Evaluator{GuardFraction: cfg.Trading.GuardFraction},
		Logger:    logger,
	}

	metrics := observability.NewMetrics("")
	metricsSrv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: observability.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server failed", "error", err)
		}
	}()

	iterate := func() {
		start := time.Now()
		marks, err := it.Run(ctx)
		metrics.IterationDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.IterationsTotal.WithLabelValues("error").Inc()
			logger.Errorw("iteration failed", "error", err)
			return
		}
		metrics.IterationsTotal.WithLabelValues("ok").Inc()
		metrics.LastSuccessfulIteration.SetToCurrentTime()

		p := eng.Portfolio()
		metrics.Balance.Set(p.Balance)
		metrics.Equity.Set(p.Equity(marks))
		metrics.RealizedPnL.Set(p.RealizedPnL)
		metrics.OpenPositions.Set(float64(len(p.Positions)))
	}

	logger.Infow("trader starting",
		"symbols", cfg.Trading.Symbols,
		"interval", cfg.Trading.Interval,
		"start_capital", cfg.Trading.StartCapital)

	iterate()
	if runOnce {
		return metricsSrv.Shutdown(context.Background())
	}

	// With a stream configured, iterations fire on bar close; the cron
	// schedule is the fallback pacing when running REST-only.
	if cfg.Exchange.StreamURL != "" {
		if err := runStreamPaced(ctx, cfg, iterate, logger); err != nil {
			return err
		}
		return metricsSrv.Shutdown(context.Background())
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.Trading.Interval), iterate); err != nil {
		return fmt.Errorf("schedule iterations: %w", err)
	}
	c.Start()

	<-ctx.Done()
	logger.Infow("shutting down")

	// Let an in-flight iteration finish before exiting.
	cronCtx := c.Stop()
	<-cronCtx.Done()

	return metricsSrv.Shutdown(context.Background())
}

// runStreamPaced runs one iteration per closed execution-interval bar. Bars
// close for all symbols at the same instant, so the first event of a bar
// triggers the iteration and the rest of that bar's events are drained.
func runStreamPaced(ctx context.Context, cfg *config.Config, iterate func(), logger *zap.SugaredLogger) error {
	stream, err := market.NewKlineStream(ctx, cfg.Exchange.StreamURL,
		cfg.Trading.Symbols, []string{domain.TimeframeExecution}, nil, logger)
	if err != nil {
		return fmt.Errorf("open kline stream: %w", err)
	}
	defer stream.Close()

	logger.Infow("stream pacing enabled", "interval", domain.TimeframeExecution)

	var lastBarOpen int64
	for {
		select {
		case <-ctx.Done():
			logger.Infow("shutting down")
			return nil
		case ev, ok := <-stream.Events():
			if !ok {
				return fmt.Errorf("kline stream closed")
			}
			if ev.Kline.OpenTime <= lastBarOpen {
				continue
			}
			lastBarOpen = ev.Kline.OpenTime
			iterate()
		}
	}
}
