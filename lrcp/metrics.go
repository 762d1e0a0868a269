package lrcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cyberinferno/protohackers/metrics"
)

// Metrics holds the LRCP collectors. A nil *Metrics records nothing.
type Metrics struct {
	sessionsOpen prometheus.Gauge
	received     *prometheus.CounterVec
	malformed    prometheus.Counter
	inboxDropped prometheus.Counter
	segmentsSent *prometheus.CounterVec
	violations   prometheus.Counter
	sendErrors   prometheus.Counter
}

// NewMetrics registers the LRCP collectors on reg. A nil reg yields working
// but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: metrics.Namespace, Subsystem: "lrcp", Name: name, Help: help}
	}

	return &Metrics{
		sessionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "lrcp",
			Name:      "sessions_open",
			Help:      "Number of sessions in the session table",
		}),
		received:     factory.NewCounterVec(counter("messages_received_total", "Decoded messages by kind"), []string{"kind"}),
		malformed:    factory.NewCounter(counter("messages_malformed_total", "Datagrams dropped as malformed")),
		inboxDropped: factory.NewCounter(counter("inbox_dropped_total", "Decoded messages dropped because the worker inbox was full")),
		segmentsSent: factory.NewCounterVec(counter("segments_sent_total", "Data segments sent, by reason"), []string{"reason"}),
		violations:   factory.NewCounter(counter("protocol_violations_total", "Sessions closed for acknowledging unsent data")),
		sendErrors:   factory.NewCounter(counter("send_errors_total", "Failed datagram sends")),
	}
}

func (m *Metrics) setSessions(n int) {
	if m != nil {
		m.sessionsOpen.Set(float64(n))
	}
}

func (m *Metrics) messageReceived(k Kind) {
	if m != nil {
		m.received.WithLabelValues(k.String()).Inc()
	}
}

func (m *Metrics) messageMalformed() {
	if m != nil {
		m.malformed.Inc()
	}
}

func (m *Metrics) messageDropped() {
	if m != nil {
		m.inboxDropped.Inc()
	}
}

func (m *Metrics) segmentSent(retransmit bool) {
	if m == nil {
		return
	}

	reason := "flush"
	if retransmit {
		reason = "retransmit"
	}
	m.segmentsSent.WithLabelValues(reason).Inc()
}

func (m *Metrics) violation() {
	if m != nil {
		m.violations.Inc()
	}
}

func (m *Metrics) sendFailed() {
	if m != nil {
		m.sendErrors.Inc()
	}
}
