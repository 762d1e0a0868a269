package tcpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cyberinferno/protohackers/metrics"
)

// Metrics counts accepted and currently open connections per server name.
// A nil *Metrics records nothing.
type Metrics struct {
	accepted *prometheus.CounterVec
	open     *prometheus.GaugeVec
}

// NewMetrics registers the connection collectors on reg. A nil reg yields
// working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		accepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "tcp",
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted TCP connections",
		}, []string{"server"}),
		open: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "tcp",
			Name:      "connections_open",
			Help:      "Number of TCP connections currently being handled",
		}, []string{"server"}),
	}
}

func (m *Metrics) opened(server string) {
	if m == nil {
		return
	}

	m.accepted.WithLabelValues(server).Inc()
	m.open.WithLabelValues(server).Inc()
}

func (m *Metrics) closed(server string) {
	if m == nil {
		return
	}

	m.open.WithLabelValues(server).Dec()
}
