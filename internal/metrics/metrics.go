package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "rabbitlog"

	// Error type label values
	ErrorDecode = "decode"
	ErrorWrite  = "write"
)

// Metrics holds the collector's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	messagesReceived prometheus.Counter
	linesWritten     prometheus.Counter
	bytesWritten     prometheus.Counter
	errors           *prometheus.CounterVec
	state            prometheus.Gauge
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_received_total",
			Help:      "Total messages delivered by the broker",
		}),
		linesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lines_written_total",
			Help:      "Total log lines appended to the log file",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bytes_written_total",
			Help:      "Total bytes appended to the log file",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total per-message errors by type",
		}, []string{"type"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "state",
			Help:      "Current collector state (0=idle 1=connecting 2=topology_ready 3=consuming 4=draining 5=closed)",
		}),
	}

	collectors := []prometheus.Collector{
		m.messagesReceived,
		m.linesWritten,
		m.bytesWritten,
		m.errors,
		m.state,
	}
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

func (m *Metrics) LineWritten(bytes int) {
	if m == nil {
		return
	}
	m.linesWritten.Inc()
	m.bytesWritten.Add(float64(bytes))
}

func (m *Metrics) Error(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}
