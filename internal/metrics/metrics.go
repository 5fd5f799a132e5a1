// Package metrics exposes Prometheus instruments for the decision engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signal_engine"

// ============ Signal classification ============

// SignalsTotal counts classified signals by strategy and tier
var SignalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strategy",
		Name:      "signals_total",
		Help:      "Total number of classified signals",
	},
	[]string{"strategy", "tier"},
)

// ConfirmationsTotal counts confirmation gate outcomes
var ConfirmationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strategy",
		Name:      "confirmations_total",
		Help:      "Total number of resolved or evicted pending confirmations",
	},
	[]string{"outcome"}, // accepted, rejected, expired
)

// PendingConfirmations is the current size of the confirmation gate
var PendingConfirmations = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "strategy",
		Name:      "pending_confirmations",
		Help:      "Signals waiting for a 5m close",
	},
)

// ============ Position lifecycle ============

// GateRejectionsTotal counts entries refused before sizing or ordering
var GateRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "gate_rejections_total",
		Help:      "Total number of entries rejected by portfolio gates",
	},
	[]string{"reason"}, // paused, max_positions, duplicate, cooldown, invalid_risk
)

// TradesOpenedTotal counts filled entries
var TradesOpenedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "trades_opened_total",
		Help:      "Total number of opened positions",
	},
	[]string{"strategy", "profile"},
)

// TradesClosedTotal counts closed positions by exit reason
var TradesClosedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "trades_closed_total",
		Help:      "Total number of closed positions",
	},
	[]string{"reason"},
)

// TradePnL observes realized pnl percent per closed trade
var TradePnL = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "trade_pnl_pct",
		Help:      "Realized pnl percent of closed trades",
		Buckets:   []float64{-10, -5, -3, -2, -1, -0.5, 0, 0.5, 1, 2, 3, 5, 10},
	},
	[]string{"strategy"},
)

// OpenPositions is the current number of open positions
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "open_positions",
		Help:      "Current number of open positions",
	},
)

// Balance is the available capital
var Balance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "balance_usdt",
		Help:      "Available capital in quote currency",
	},
)

// ============ Exchange ============

// OrderLatency observes market order round trips in milliseconds
var OrderLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "exchange",
		Name:      "order_latency_ms",
		Help:      "Market order round trip in milliseconds",
		Buckets:   []float64{1, 5, 25, 50, 100, 200, 500, 1000, 2000, 5000},
	},
	[]string{"side", "result"},
)

// StreamReconnects counts kline stream reconnections
var StreamReconnects = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "exchange",
		Name:      "stream_reconnects_total",
		Help:      "Total number of kline stream reconnects",
	},
)

// ObserveOrder records the latency and result of one order call
func ObserveOrder(side string, started time.Time, err error) {
	result := "filled"
	if err != nil {
		result = "failed"
	}
	OrderLatency.WithLabelValues(side, result).Observe(float64(time.Since(started).Microseconds()) / 1000)
}
