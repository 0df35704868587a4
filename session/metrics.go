package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

type sessionMetrics struct {
	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	framesDropped  prometheus.Counter
	reconnects     prometheus.Counter
}

func newSessionMetrics() *sessionMetrics {
	return &sessionMetrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libranda",
			Subsystem: "session",
			Name:      "frames_sent_total",
			Help:      "Outbound frames written to the transport.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libranda",
			Subsystem: "session",
			Name:      "frames_received_total",
			Help:      "Inbound frames decoded and dispatched.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libranda",
			Subsystem: "session",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped as malformed.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libranda",
			Subsystem: "session",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled after an unexpected close.",
		}),
	}
}

func (m *sessionMetrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.framesSent, m.framesReceived, m.framesDropped, m.reconnects,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
