package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus counters for cache behavior. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	hitsTotal        *prometheus.CounterVec
	missesTotal      *prometheus.CounterVec
	staleServedTotal *prometheus.CounterVec
	dedupedTotal     *prometheus.CounterVec
	fetchesTotal     *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	failuresTotal    *prometheus.CounterVec
	invalidatedTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers cache collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdeck",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Reads served from a fresh cache entry.",
		}, []string{"key"}),
		missesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdeck",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Reads that had to fetch in the foreground.",
		}, []string{"key"}),
		staleServedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdeck",
			Subsystem: "cache",
			Name:      "stale_served_total",
			Help:      "Reads served stale data while revalidating.",
		}, []string{"key"}),
		dedupedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdeck",
			Subsystem: "cache",
			Name:      "deduped_total",
			Help:      "Reads attached to an already in-flight fetch.",
		}, []string{"key"}),
		fetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdeck",
			Subsystem: "cache",
			Name:      "fetches_total",
			Help:      "Completed successful fetches.",
		}, []string{"key"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdeck",
			Subsystem: "cache",
			Name:      "retries_total",
			Help:      "Automatic fetch retries.",
		}, []string{"key"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdeck",
			Subsystem: "cache",
			Name:      "failures_total",
			Help:      "Fetches that failed after the automatic retry.",
		}, []string{"key"}),
		invalidatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdeck",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Invalidation events per key.",
		}, []string{"key"}),
	}

	reg.MustRegister(
		m.hitsTotal, m.missesTotal, m.staleServedTotal, m.dedupedTotal,
		m.fetchesTotal, m.retriesTotal, m.failuresTotal, m.invalidatedTotal,
	)
	return m
}

func (m *Metrics) hit(key Key) {
	if m != nil {
		m.hitsTotal.WithLabelValues(string(key)).Inc()
	}
}

func (m *Metrics) miss(key Key) {
	if m != nil {
		m.missesTotal.WithLabelValues(string(key)).Inc()
	}
}

func (m *Metrics) servedStale(key Key) {
	if m != nil {
		m.staleServedTotal.WithLabelValues(string(key)).Inc()
	}
}

func (m *Metrics) fetchDeduped(key Key) {
	if m != nil {
		m.dedupedTotal.WithLabelValues(string(key)).Inc()
	}
}

func (m *Metrics) fetched(key Key) {
	if m != nil {
		m.fetchesTotal.WithLabelValues(string(key)).Inc()
	}
}

func (m *Metrics) retried(key Key) {
	if m != nil {
		m.retriesTotal.WithLabelValues(string(key)).Inc()
	}
}

func (m *Metrics) fetchFailed(key Key) {
	if m != nil {
		m.failuresTotal.WithLabelValues(string(key)).Inc()
	}
}

func (m *Metrics) invalidated(key Key) {
	if m != nil {
		m.invalidatedTotal.WithLabelValues(string(key)).Inc()
	}
}
