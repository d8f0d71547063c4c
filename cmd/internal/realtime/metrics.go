package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the realtime collectors. A nil *Metrics records nothing.
type Metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	requests    *prometheus.CounterVec
	messages    prometheus.Counter
	sends       *prometheus.CounterVec
}

// NewMetrics creates the realtime collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomchat",
			Name:      "connections",
			Help:      "Open client connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roomchat",
			Name:      "rooms",
			Help:      "Rooms currently held in memory.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "requests_total",
			Help:      "Dispatched client requests by type.",
		}, []string{"type"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "messages_total",
			Help:      "Chat messages persisted and broadcast.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roomchat",
			Name:      "sends_total",
			Help:      "Outbound sends by result (sent, dropped, failed).",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.rooms, m.requests, m.messages, m.sends)
	}
	return m
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) roomOpened() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) roomClosed() {
	if m != nil {
		m.rooms.Dec()
	}
}

func (m *Metrics) request(typ string) {
	if m != nil {
		m.requests.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) message() {
	if m != nil {
		m.messages.Inc()
	}
}

func (m *Metrics) send(result string) {
	if m != nil {
		m.sends.WithLabelValues(result).Inc()
	}
}
