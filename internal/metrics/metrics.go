package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookingsync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	operationsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_enqueued_total",
			Help:      "Operations accepted into the offline queue by kind.",
		},
		[]string{"kind"},
	)

	operationsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_committed_total",
			Help:      "Operations that left the queue, by kind and outcome (written, already_satisfied).",
		},
		[]string{"kind", "outcome"},
	)

	subBatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sub_batch_failures_total",
			Help:      "Atomic sub-batch commits that failed.",
		},
		[]string{"kind"},
	)

	dedupFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_chunk_failures_total",
			Help:      "Existence query chunks that failed and degraded to unknown.",
		},
		[]string{"kind"},
	)

	cleanupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_cleanup_failures_total",
			Help:      "Durable cache deletions that failed after a commit.",
		},
	)

	syncCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Sync cycles by result.",
		},
		[]string{"result"},
	)

	retriesExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_retries_exhausted_total",
			Help:      "Backoff sequences that reached the attempt limit.",
		},
	)

	queueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Operations currently waiting in the offline queue.",
		},
	)

	online = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_online",
			Help:      "1 when the remote store is considered reachable.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			operationsEnqueued,
			operationsCommitted,
			subBatchFailures,
			dedupFailures,
			cleanupFailures,
			syncCycles,
			retriesExhausted,
			queueLength,
			online,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncEnqueued(kind string) {
	operationsEnqueued.WithLabelValues(kind).Inc()
}

func AddCommitted(kind, outcome string, n int) {
	if n <= 0 {
		return
	}
	operationsCommitted.WithLabelValues(kind, outcome).Add(float64(n))
}

func IncSubBatchFailure(kind string) {
	subBatchFailures.WithLabelValues(kind).Inc()
}

func IncDedupFailure(kind string) {
	dedupFailures.WithLabelValues(kind).Inc()
}

func IncCleanupFailure() {
	cleanupFailures.Inc()
}

func IncSyncCycle(result string) {
	syncCycles.WithLabelValues(result).Inc()
}

func IncRetriesExhausted() {
	retriesExhausted.Inc()
}

func SetQueueLength(n int) {
	queueLength.Set(float64(n))
}

func SetOnline(v bool) {
	if v {
		online.Set(1)
		return
	}
	online.Set(0)
}
