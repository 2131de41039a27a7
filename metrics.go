package pushsub

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors a ServerClient updates. A client always
// has a set; register them with Register to expose them.
type Metrics struct {
	ConnectAttempts  prometheus.Counter
	Opens            prometheus.Counter
	Closes           prometheus.Counter
	QueueDepth       prometheus.Gauge
	DroppedMessages  prometheus.Counter
	FramesDispatched prometheus.Counter
	FramesDiscarded  prometheus.Counter
	MalformedFrames  prometheus.Counter
	HandlerFailures  prometheus.Counter
	ReplayedIntents  prometheus.Counter
	FlushedMessages  prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		ConnectAttempts: counter("connect_attempts_total", "Connection attempts scheduled by the supervisor."),
		Opens:           counter("opens_total", "Transport handles that reached the open state."),
		Closes:          counter("closes_total", "Transport handles that closed or failed to dial."),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "outbound_queue_depth",
			Help:      "Messages waiting for an open transport.",
		}),
		DroppedMessages:  counter("dropped_messages_total", "Non-queuable messages dropped while the transport was not open."),
		FramesDispatched: counter("frames_dispatched_total", "Inbound frames delivered to at least one handler."),
		FramesDiscarded:  counter("frames_discarded_total", "Inbound frames without a registered handler."),
		MalformedFrames:  counter("frames_malformed_total", "Inbound frames that failed to parse."),
		HandlerFailures:  counter("handler_failures_total", "Handler invocations that returned an error or panicked."),
		ReplayedIntents:  counter("replayed_subscriptions_total", "Subscribe messages resent after an open."),
		FlushedMessages:  counter("flushed_messages_total", "Queued messages written after an open."),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectAttempts,
		m.Opens,
		m.Closes,
		m.QueueDepth,
		m.DroppedMessages,
		m.FramesDispatched,
		m.FramesDiscarded,
		m.MalformedFrames,
		m.HandlerFailures,
		m.ReplayedIntents,
		m.FlushedMessages,
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "register pushsub metrics")
		}
	}
	return nil
}
