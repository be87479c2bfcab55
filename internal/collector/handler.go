package collector

import (
	"time"

	"github.com/epalmerini/rabbitlog/internal/metrics"
	"github.com/epalmerini/rabbitlog/internal/rabbitmq"
)

// Sink receives formatted log lines.
type Sink interface {
	Append(line string) error
}

// Echo shows each received message to a person watching the console.
type Echo interface {
	Received(routingKey, text string)
}

// Handler turns one delivery into one log line. It holds explicit
// references to everything it writes to.
type Handler struct {
	sink    Sink
	echo    Echo
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewHandler(sink Sink, echo Echo, m *metrics.Metrics, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{sink: sink, echo: echo, metrics: m, now: now}
}

// Handle decodes, echoes and appends d. A returned error concerns this
// message only; the broker has already considered it delivered.
func (h *Handler) Handle(d rabbitmq.Delivery) error {
	receivedAt := h.now()
	h.metrics.MessageReceived()

	text, err := decodeText(d.Body, d.ContentType)
	if err != nil {
		h.metrics.Error(metrics.ErrorDecode)
		return err
	}

	h.echo.Received(d.RoutingKey, text)

	line := Entry{ReceivedAt: receivedAt, RoutingKey: d.RoutingKey, Text: text}.Line()
	if err := h.sink.Append(line); err != nil {
		h.metrics.Error(metrics.ErrorWrite)
		return err
	}
	h.metrics.LineWritten(len(line))
	return nil
}
