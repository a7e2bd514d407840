// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading loop.
type Metrics struct {
	// Iteration metrics
	IterationsTotal   *prometheus.CounterVec
	IterationDuration prometheus.Histogram

	// Decision metrics
	DecisionsTotal     *prometheus.CounterVec
	DecisionsRejected  *prometheus.CounterVec
	DecisionLatency    prometheus.Histogram
	SnapshotBuildError prometheus.Counter

	// Position metrics
	PositionsOpened prometheus.Counter
	PositionsClosed *prometheus.CounterVec
	OpenPositions   prometheus.Gauge

	// Account metrics
	Equity      prometheus.Gauge
	Balance     prometheus.Gauge
	RealizedPnL prometheus.Gauge
	FeesPaid    prometheus.Counter

	// Exchange metrics
	ExchangeRequestLatency *prometheus.HistogramVec
	ExchangeRequestErrors  *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIteration prometheus.Gauge
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "perp_trading_lab"
	}

	return &Metrics{
		IterationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "iterations_total",
			Help:      "Total number of trading loop iterations by status",
		}, []string{"status"}),
		IterationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "iteration_duration_seconds",
			Help:      "Trading loop iteration duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decisions",
			Name:      "total",
			Help:      "Total number of decisions by signal",
		}, []string{"signal"}),
		DecisionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decisions",
			Name:      "rejected_total",
			Help:      "Total number of rejected decisions by reason",
		}, []string{"reason"}),
		DecisionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "decisions",
			Name:      "latency_seconds",
			Help:      "Decision source round-trip latency in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60, 120},
		}),
		SnapshotBuildError: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "snapshot_errors_total",
			Help:      "Total number of failed snapshot builds",
		}),

		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "opened_total",
			Help:      "Total number of positions opened",
		}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Total number of positions closed by exit reason",
		}, []string{"reason"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "open",
			Help:      "Current number of open positions",
		}),

		Equity: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "equity_usd",
			Help:      "Current equity in USD",
		}),
		Balance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "balance_usd",
			Help:      "Current free balance in USD",
		}),
		RealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "realized_pnl_usd",
			Help:      "Cumulative realized PnL in USD",
		}),
		FeesPaid: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "fees_paid_usd_total",
			Help:      "Cumulative fees paid in USD",
		}),

		ExchangeRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "request_latency_seconds",
			Help:      "Exchange request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ExchangeRequestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "request_errors_total",
			Help:      "Total number of failed exchange requests",
		}, []string{"endpoint"}),

		LastSuccessfulIteration: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_iteration_timestamp",
			Help:      "Unix timestamp of the last successful iteration",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
