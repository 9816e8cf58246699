package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.MessageRelayed("customer")
	m.MessageRelayed("customer")
	m.Escalation("admin", nil)
	m.Escalation("admin", errors.New("boom"))
	m.EscalationSkipped("customer")
	m.SetConnections(3, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesRelayed.WithLabelValues("customer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Escalations.WithLabelValues("admin", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Escalations.WithLabelValues("admin", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Escalations.WithLabelValues("customer", "skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConnectedCustomers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectedAdmins))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageRelayed("admin")
		m.Escalation("customer", nil)
		m.EscalationSkipped("admin")
		m.ConnectionDropped()
		m.PublishFailed()
		m.SetConnections(1, 1)
	})
}
