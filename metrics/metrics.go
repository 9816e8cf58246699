package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the chat relay collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	MessagesRelayed    *prometheus.CounterVec
	Escalations        *prometheus.CounterVec
	DroppedConnections prometheus.Counter
	ConnectedCustomers prometheus.Gauge
	ConnectedAdmins    prometheus.Gauge
	PublishFailures    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesRelayed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "equisaddles",
				Subsystem: "chat",
				Name:      "messages_total",
				Help:      "Chat messages persisted, by sender",
			},
			[]string{"sender"},
		),
		Escalations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "equisaddles",
				Subsystem: "chat",
				Name:      "escalations_total",
				Help:      "Email escalations by recipient kind and outcome (sent, failed, skipped)",
			},
			[]string{"kind", "outcome"},
		),
		DroppedConnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "equisaddles",
			Subsystem: "chat",
			Name:      "dropped_connections_total",
			Help:      "Connections unregistered after a failed send",
		}),
		ConnectedCustomers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "equisaddles",
			Subsystem: "chat",
			Name:      "connected_customers",
			Help:      "Customer sessions with a live connection",
		}),
		ConnectedAdmins: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "equisaddles",
			Subsystem: "chat",
			Name:      "connected_admins",
			Help:      "Live admin connections",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "equisaddles",
			Subsystem: "chat",
			Name:      "event_publish_failures_total",
			Help:      "Chat events that could not be published to the event stream",
		}),
	}
}

func (m *Metrics) MessageRelayed(sender string) {
	if m == nil {
		return
	}
	m.MessagesRelayed.WithLabelValues(sender).Inc()
}

func (m *Metrics) Escalation(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.Escalations.WithLabelValues(kind, outcome).Inc()
}

// EscalationSkipped records an escalation not attempted because mail is disabled.
func (m *Metrics) EscalationSkipped(kind string) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(kind, "skipped").Inc()
}

func (m *Metrics) ConnectionDropped() {
	if m == nil {
		return
	}
	m.DroppedConnections.Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

func (m *Metrics) SetConnections(customers, admins int) {
	if m == nil {
		return
	}
	m.ConnectedCustomers.Set(float64(customers))
	m.ConnectedAdmins.Set(float64(admins))
}
