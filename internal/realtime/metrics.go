package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus counters for router behavior. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	eventsTotal     *prometheus.CounterVec
	reconnectsTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers router collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdeck",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Change events routed, per collection and kind.",
		}, []string{"collection", "kind"}),
		reconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentdeck",
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Push channel redial attempts, per collection.",
		}, []string{"collection"}),
	}

	reg.MustRegister(m.eventsTotal, m.reconnectsTotal)
	return m
}

func (m *Metrics) event(collection, kind string) {
	if m != nil {
		m.eventsTotal.WithLabelValues(collection, kind).Inc()
	}
}

func (m *Metrics) reconnect(collection string) {
	if m != nil {
		m.reconnectsTotal.WithLabelValues(collection).Inc()
	}
}
