// Package observe exposes runtime counters for the trading loop.
package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the registry of counters and gauges the runtime maintains.
type Metrics struct {
	TicksProcessed  prometheus.Counter
	BarCloses       prometheus.Counter
	OrdersPlaced    prometheus.Counter
	OrdersRejected  prometheus.Counter
	FeedReconnects  prometheus.Counter
	BacktestsRun    prometheus.Counter
	OptimizerRuns   prometheus.Counter
	ReviewCycles    prometheus.Counter
	WSClients       prometheus.Gauge
	CandlesStored   prometheus.Gauge
}

// NewMetrics registers the metric set against the given registerer. Tests
// pass a private registry so parallel packages never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_ticks_processed_total",
			Help: "Market ticks delivered to the live agent.",
		}),
		BarCloses: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_bar_closes_total",
			Help: "Bar-close events detected and evaluated.",
		}),
		OrdersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_orders_placed_total",
			Help: "Orders accepted by the exchange.",
		}),
		OrdersRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_orders_rejected_total",
			Help: "Orders the exchange rejected or that failed in transit.",
		}),
		FeedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_feed_reconnects_total",
			Help: "WebSocket feed reconnection attempts.",
		}),
		BacktestsRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_backtests_run_total",
			Help: "Simulator runs completed, including optimizer sweeps.",
		}),
		OptimizerRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_optimizer_runs_total",
			Help: "Grid searches completed.",
		}),
		ReviewCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_review_cycles_total",
			Help: "Self-review ranking cycles completed.",
		}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trading_ws_clients",
			Help: "Browser WebSocket clients currently connected.",
		}),
		CandlesStored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trading_candles_stored",
			Help: "Candles currently held in the store.",
		}),
	}
}
