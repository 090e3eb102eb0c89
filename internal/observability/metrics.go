package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: all metrics are defined globally here. A binary that imports this
// package initializes the other services' metrics with zero values, which
// is harmless.

// namespace defines the global prefix for all metrics (e.g., hermes_...).
const namespace = "hermes"

// lowLatencyBuckets gives 1-2ms resolution for the visitor-facing redirect
// path, whose whole resolution budget is in the low hundreds of
// milliseconds. Standard buckets start too coarse at 5ms.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// ROUTER (HTTP)
	// -------------------------------------------------------------------------

	// RouterReqDuration measures the latency of router HTTP requests.
	// Metric: hermes_router_http_handling_seconds
	RouterReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests in the router",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "path"})

	// RouterReqTotal counts router HTTP requests by outcome.
	// Metric: hermes_router_http_requests_total
	RouterReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests in the router",
	}, []string{"method", "path", "code"})

	// ResolutionsTotal counts cascade outcomes by the step that decided
	// (override, creative, partner, domain, global, none).
	// Metric: hermes_router_resolutions_total
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "resolutions_total",
		Help:      "Total redirect resolutions by cascade source",
	}, []string{"source"})

	// -------------------------------------------------------------------------
	// CLICK RECORDER
	// -------------------------------------------------------------------------

	// RecorderWritesTotal counts click record writes by record kind and
	// status. Failures here never affect the HTTP response, so this counter
	// is the only place they become visible.
	// Metric: hermes_recorder_writes_total
	RecorderWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recorder",
		Name:      "writes_total",
		Help:      "Total click record writes by kind and status",
	}, []string{"kind", "status"}) // kind: click_log|click|publish; status: ok|fail|duplicate

	// -------------------------------------------------------------------------
	// ROUTING CACHE (L1 otter + L2 Redis)
	// -------------------------------------------------------------------------

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Routing cache lookups by layer and result",
	}, []string{"layer", "result"}) // layer: l1|l2; result: hit|miss|error

	// -------------------------------------------------------------------------
	// SYNCER (cache warmer)
	// -------------------------------------------------------------------------

	SyncerCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one full snapshot sync cycle",
		Buckets:   prometheus.DefBuckets,
	})

	SyncerCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "cycles_total",
		Help:      "Total snapshot sync cycles",
	}, []string{"status"}) // success, fail

	// -------------------------------------------------------------------------
	// ANALYTICS WORKER
	// -------------------------------------------------------------------------

	AnalyticsBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analytics",
		Name:      "batches_total",
		Help:      "Total click-event batches processed by the analytics worker",
	}, []string{"status"}) // success, fail

	AnalyticsEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analytics",
		Name:      "events_total",
		Help:      "Total click events consumed from the queue",
	})
)
