package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CommandsProcessed counts commands the engine worker finished, by kind
// (order/deposit) and outcome (accepted/rejected).
var CommandsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "matchcore_commands_processed_total",
		Help: "Total number of commands processed by the engine",
	},
	[]string{"kind", "outcome"},
)

// OrdersRejected counts rejected orders by reason
var OrdersRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "matchcore_orders_rejected_total",
		Help: "Total number of orders rejected before reaching the journal",
	},
	[]string{"reason"},
)

var TradesExecuted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "matchcore_trades_total",
		Help: "Total number of trades executed",
	},
	[]string{"instrument"},
)

// OrderLatency records time from dequeue to journaled for accepted orders
var OrderLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "matchcore_order_processing_latency_seconds",
		Help:    "Latency in seconds to process individual orders",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
	},
)

var IntakeDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "matchcore_intake_queue_depth",
		Help: "Commands waiting for the engine worker",
	},
)

var EngineHalted = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "matchcore_engine_halted",
		Help: "1 when the engine stopped on a fatal error",
	},
)

// Journal metrics
var (
	JournalAppendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matchcore_journal_append_latency_seconds",
			Help:    "Latency of a single journal append",
			Buckets: prometheus.ExponentialBuckets(0.000005, 2, 16),
		},
	)

	JournalBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchcore_journal_bytes",
			Help: "Bytes committed to the journal by this process",
		},
	)

	ReplayedRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchcore_journal_replayed_records",
			Help: "Records applied by the last recovery",
		},
	)
)

// Read-model sync metrics
var (
	SyncOffset = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchcore_sync_offset_bytes",
			Help: "Last journal offset flushed to the read model",
		},
	)

	SyncLag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "matchcore_sync_lag_bytes",
			Help: "Journal bytes not yet flushed to the read model",
		},
	)

	SyncErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "matchcore_sync_errors_total",
			Help: "Failed sync rounds",
		},
	)
)

// OutboxPublished counts execution report publish attempts by result
var OutboxPublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "matchcore_outbox_published_total",
		Help: "Execution reports published to the broker",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(CommandsProcessed, OrdersRejected, TradesExecuted, OrderLatency)
	prometheus.MustRegister(IntakeDepth, EngineHalted)
	prometheus.MustRegister(JournalAppendLatency, JournalBytes, ReplayedRecords)
	prometheus.MustRegister(SyncOffset, SyncLag, SyncErrors)
	prometheus.MustRegister(OutboxPublished)
}
