package auth

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts auth outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics creates the auth collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Auth operations by event and result.",
		}, []string{"event", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.events)
	}
	return m
}

func (m *Metrics) observe(event string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case IsRejection(err):
		result = "rejected"
	default:
		result = "error"
	}
	m.events.WithLabelValues(event, result).Inc()
}
