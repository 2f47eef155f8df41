package framing

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics is shared by every reader and writer built with the same options.
// A nil *metrics records nothing.
type metrics struct {
	messages     *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	flushes      prometheus.Counter
	decodeErrors prometheus.Counter
	splits       prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer, namespace, subsystem string) *metrics {
	m := metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_total",
			Help:      "Number of messages decoded or accepted for sending",
		}, []string{"direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_total",
			Help:      "Number of bytes read from or written to connections",
		}, []string{"direction"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "flushes_total",
			Help:      "Number of completed writer flushes",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decode_errors_total",
			Help:      "Number of messages that failed to decode",
		}),
		splits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "splits_total",
			Help:      "Number of streams split into read and write halves",
		}),
	}

	if registerer != nil {
		registerer = prometheus.WrapRegistererWith(
			prometheus.Labels{"component": "framing"},
			registerer,
		)
		registerer.MustRegister(
			m.messages,
			m.bytes,
			m.flushes,
			m.decodeErrors,
			m.splits,
		)
	}

	return &m
}

func (m *metrics) read(n int) {
	if m == nil || n == 0 {
		return
	}
	m.bytes.WithLabelValues("in").Add(float64(n))
}

func (m *metrics) written(n int) {
	if m == nil || n == 0 {
		return
	}
	m.bytes.WithLabelValues("out").Add(float64(n))
}

func (m *metrics) decoded() {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("in").Inc()
}

func (m *metrics) accepted() {
	if m == nil {
		return
	}
	m.messages.WithLabelValues("out").Inc()
}

func (m *metrics) flushed() {
	if m == nil {
		return
	}
	m.flushes.Inc()
}

func (m *metrics) decodeFailed() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *metrics) split() {
	if m == nil {
		return
	}
	m.splits.Inc()
}
