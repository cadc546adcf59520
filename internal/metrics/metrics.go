// Package metrics holds the prometheus collectors of the trader. They are
// registered on the default registry and served by the web API at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coin_trader"

// CyclesTotal counts scheduler cycles by kind (screen, buy, update) and result.
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "cycles_total",
		Help:      "Total number of scheduler cycles",
	},
	[]string{"kind", "result"}, // result: ok, skipped, panic
)

// CycleDuration observes how long a cycle took.
var CycleDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of scheduler cycles in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"kind"},
)

// OrdersTotal counts submitted market orders.
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "orders_total",
		Help:      "Total number of market orders",
	},
	[]string{"side", "result"}, // result: filled, rejected, error
)

// GatewayErrors counts failed gateway calls by operation.
var GatewayErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "exchange",
		Name:      "errors_total",
		Help:      "Total number of failed exchange gateway calls",
	},
	[]string{"op"},
)

// SalesTotal counts liquidations by classification.
var SalesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "sales_total",
		Help:      "Total number of sales by classification",
	},
	[]string{"sale"}, // LOSS, GAIN, PAIR
)

var ScreeningRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "rejections_total",
		Help:      "Total number of rejected screening candidates by reason",
	},
	[]string{"reason"}, // phase, forecast, no_history
)

var PositionsHeld = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "wallet",
		Name:      "positions",
		Help:      "Current number of held positions",
	},
)

var CheckingSize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "wallet",
		Name:      "checking",
		Help:      "Current number of candidates in the checking list",
	},
)

// TotalIncome is the mean realized income in percent.
var TotalIncome = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "total_income_percent",
		Help:      "Mean realized income per sale in percent",
	},
)

var TraderEnabled = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "trading",
		Name:      "enabled",
		Help:      "1 when the trader is enabled, 0 otherwise",
	},
)

var RemoteCommands = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "commands_total",
		Help:      "Total number of remote commands by kind and result",
	},
	[]string{"kind", "result"}, // result: applied, rejected
)

var SyncClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "clients",
		Help:      "Current number of connected sync clients",
	},
)

// SetEnabled mirrors the enabled flag into TraderEnabled.
func SetEnabled(on bool) {
	if on {
		TraderEnabled.Set(1)
		return
	}
	TraderEnabled.Set(0)
}
