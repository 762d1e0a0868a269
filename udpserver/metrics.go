package udpserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cyberinferno/protohackers/metrics"
)

// Metrics counts datagrams per server name. A nil *Metrics records nothing.
type Metrics struct {
	received   *prometheus.CounterVec
	sent       *prometheus.CounterVec
	sendErrors *prometheus.CounterVec
}

// NewMetrics registers the datagram collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: metrics.Namespace, Subsystem: "udp", Name: name, Help: help}
	}

	return &Metrics{
		received:   factory.NewCounterVec(opts("datagrams_received_total", "Total datagrams read"), []string{"server"}),
		sent:       factory.NewCounterVec(opts("datagrams_sent_total", "Total datagrams written"), []string{"server"}),
		sendErrors: factory.NewCounterVec(opts("send_errors_total", "Total failed datagram writes"), []string{"server"}),
	}
}

func (m *Metrics) incReceived(server string) {
	if m != nil {
		m.received.WithLabelValues(server).Inc()
	}
}

func (m *Metrics) incSent(server string) {
	if m != nil {
		m.sent.WithLabelValues(server).Inc()
	}
}

func (m *Metrics) incSendErrors(server string) {
	if m != nil {
		m.sendErrors.WithLabelValues(server).Inc()
	}
}
