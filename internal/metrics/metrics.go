// Package metrics exposes PumpGuard's Prometheus surface, consolidated
// from the teacher's several overlapping metrics variants
// (go-server/internal/metrics/{metrics,enhanced,simple_metrics,
// runtime_metrics,connections}.go) into one registry built with promauto,
// the way go-server/internal/metrics/metrics.go constructs its Metrics
// struct.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every counter/gauge/histogram PumpGuard's core and
// dashboard emit.
type Registry struct {
	startedAt time.Time

	TokensDetected   prometheus.Counter
	AlertsSent       prometheus.Counter
	AlertsSkipped    prometheus.Counter
	RugsDetected     prometheus.Counter
	WhalesIdentified prometheus.Counter
	AccumulationAlerts prometheus.Counter
	DumpAlerts         prometheus.Counter
	TotalVolumeTracked prometheus.Gauge

	WSReconnects   prometheus.Counter
	WSStaleDrops   prometheus.Counter
	BroadcastLag   *prometheus.CounterVec
	RPCRetries     prometheus.Counter
	RPCFailures    prometheus.Counter

	AnalyzerLatency *prometheus.HistogramVec

	DashboardConnections prometheus.Gauge
}

// NewRegistry builds and registers every metric against the default
// Prometheus registry, mirroring go-server's promauto-based constructor.
func NewRegistry() *Registry {
	return &Registry{
		startedAt: time.Now(),

		TokensDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_tokens_detected_total",
			Help: "Total number of new tokens detected by the token detector.",
		}),
		AlertsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_alerts_sent_total",
			Help: "Total number of alerts admitted past rate limiting and dispatched.",
		}),
		AlertsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_alerts_skipped_total",
			Help: "Total number of alerts suppressed by the per-minute rate limiter.",
		}),
		RugsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_rugs_detected_total",
			Help: "Total number of tokens marked as rugged.",
		}),
		WhalesIdentified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_whales_identified_total",
			Help: "Total number of wallets promoted to whale status.",
		}),
		AccumulationAlerts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_whale_accumulation_alerts_total",
			Help: "Total number of whale accumulation (buy) alerts emitted.",
		}),
		DumpAlerts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_whale_dump_alerts_total",
			Help: "Total number of whale dump (sell) alerts emitted.",
		}),
		TotalVolumeTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pumpguard_total_volume_tracked_sol",
			Help: "Cumulative SOL volume observed across whale-threshold transactions.",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_ws_reconnects_total",
			Help: "Total number of log-stream WebSocket reconnect attempts.",
		}),
		WSStaleDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_ws_stale_drops_total",
			Help: "Total number of log-stream connections torn down for staleness.",
		}),
		BroadcastLag: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpguard_broadcast_lag_total",
			Help: "Total number of messages dropped for a lagging subscriber, by bus name.",
		}, []string{"bus"}),
		RPCRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_rpc_retries_total",
			Help: "Total number of getTransaction retries issued after a 429.",
		}),
		RPCFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pumpguard_rpc_failures_total",
			Help: "Total number of getTransaction calls that exhausted retries.",
		}),
		AnalyzerLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pumpguard_analyzer_latency_seconds",
			Help:    "Time spent processing one classified log event, by analyzer.",
			Buckets: prometheus.DefBuckets,
		}, []string{"analyzer"}),
		DashboardConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pumpguard_dashboard_connections",
			Help: "Current number of connected dashboard WebSocket clients.",
		}),
	}
}

// Uptime reports how long the process has been running.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startedAt)
}
