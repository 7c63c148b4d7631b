package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for TradeScope.
type Metrics struct {
	// --- Ingestion ---
	TradesIngested  *prometheus.CounterVec
	TradesRejected  *prometheus.CounterVec
	TradesDuplicate *prometheus.CounterVec
	FeedBatches     *prometheus.CounterVec
	PollRequests    *prometheus.CounterVec
	DedupWindowSize prometheus.Gauge

	// --- Ledger ---
	TradesApplied  prometheus.Counter
	TradesStale    prometheus.Counter
	ApplyDuration  prometheus.Histogram
	PositionsTotal prometheus.Gauge
	OversellsTotal prometheus.Counter

	// --- Snapshot ---
	SnapshotVersion   prometheus.Gauge
	SnapshotPositions prometheus.Gauge
	SnapshotBuildDur  prometheus.Histogram

	// --- Persistence ---
	PersistRowsWritten *prometheus.CounterVec
	PersistBatchDur    prometheus.Histogram
	PersistBatchSize   prometheus.Histogram
	PersistErrors      *prometheus.CounterVec
	PersistRetry       prometheus.Counter
	DedupDBDuration    prometheus.Histogram

	// --- Serving ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	WSClients     prometheus.Gauge
	WSPushes      prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	applyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005,
	}

	return &Metrics{
		// Ingestion
		TradesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradescope_trades_ingested_total",
			Help: "Trade records accepted by the normalizer",
		}, []string{"source"}),

		TradesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradescope_trades_rejected_total",
			Help: "Malformed trade records dropped",
		}, []string{"reason"}),

		TradesDuplicate: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradescope_trades_duplicate_total",
			Help: "Duplicates caught (window/watermark/postgres)",
		}, []string{"tier"}),

		FeedBatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradescope_feed_batches_total",
			Help: "Trade batches received per source",
		}, []string{"source"}),

		PollRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradescope_poll_requests_total",
			Help: "Upstream poll requests by status",
		}, []string{"status"}),

		DedupWindowSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradescope_dedup_window_size",
			Help: "Trade ids currently held in the recent-id window",
		}),

		// Ledger
		TradesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradescope_trades_applied_total",
			Help: "Trades folded into positions",
		}),

		TradesStale: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradescope_trades_stale_total",
			Help: "Trades dropped at the position watermark",
		}),

		ApplyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradescope_apply_duration_seconds",
			Help:    "Time to apply a single trade",
			Buckets: applyBuckets,
		}),

		PositionsTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradescope_positions_total",
			Help: "Tracked (wallet, market) positions",
		}),

		OversellsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradescope_oversells_total",
			Help: "Sells exceeding tracked buys (partial history)",
		}),

		// Snapshot
		SnapshotVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradescope_snapshot_version",
			Help: "Version of the current snapshot",
		}),

		SnapshotPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradescope_snapshot_positions",
			Help: "Positions in the current snapshot",
		}),

		SnapshotBuildDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradescope_snapshot_build_duration_seconds",
			Help:    "Snapshot assembly time",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		// Persistence
		PersistRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradescope_persist_rows_written_total",
			Help: "Rows written to Postgres by table",
		}, []string{"table"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradescope_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradescope_persist_batch_size",
			Help:    "Trades per persisted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradescope_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradescope_persist_retry_total",
			Help: "Persistence retries",
		}),

		DedupDBDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradescope_dedup_db_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: applyBuckets,
		}),

		// Serving
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradescope_query_requests_total",
			Help: "API requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradescope_query_duration_seconds",
			Help:    "API request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradescope_ws_clients",
			Help: "Connected WebSocket clients",
		}),

		WSPushes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradescope_ws_pushes_total",
			Help: "Snapshot notifications pushed over WebSocket",
		}),
	}
}
