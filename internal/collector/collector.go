// Package collector runs the connect, declare, consume and teardown cycle
// that turns broker deliveries into log file lines.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/epalmerini/rabbitlog/internal/config"
	"github.com/epalmerini/rabbitlog/internal/metrics"
	"github.com/epalmerini/rabbitlog/internal/rabbitmq"
	"github.com/epalmerini/rabbitlog/internal/randutil"
	"github.com/epalmerini/rabbitlog/internal/sink"
)

const consumerPrefix = "rabbitlog"

// Session is the broker session a run consumes from.
type Session interface {
	DeclareTopology(t config.Topology) error
	Consume(ctx context.Context, queue, consumerTag string) (<-chan rabbitmq.Delivery, error)
	Err() error
	Close() error
}

// LogSink is a Sink the collector owns and closes on teardown.
type LogSink interface {
	Sink
	Close() error
}

type (
	DialFunc     func(ctx context.Context, cfg config.Broker, log zerolog.Logger) (Session, error)
	OpenSinkFunc func(path string, opts sink.Options) (LogSink, error)
)

func dialRabbitMQ(ctx context.Context, cfg config.Broker, log zerolog.Logger) (Session, error) {
	s, err := rabbitmq.Dial(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openFileSink(path string, opts sink.Options) (LogSink, error) {
	s, err := sink.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Collector drives one run through its states. It is not reusable.
type Collector struct {
	cfg      config.Config
	echo     Echo
	metrics  *metrics.Metrics
	log      zerolog.Logger
	dial     DialFunc
	openSink OpenSinkFunc
	now      func() time.Time
	observe  func(from, to State)

	state State
	stats stats
}

type Option func(*Collector)

// WithDialer replaces the RabbitMQ dialer.
func WithDialer(d DialFunc) Option {
	return func(c *Collector) { c.dial = d }
}

// WithSinkOpener replaces the log file opener.
func WithSinkOpener(o OpenSinkFunc) Option {
	return func(c *Collector) { c.openSink = o }
}

// WithClock sets the clock used to timestamp entries.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithStateObserver registers fn to be called on every state transition.
func WithStateObserver(fn func(from, to State)) Option {
	return func(c *Collector) { c.observe = fn }
}

func New(cfg config.Config, echo Echo, m *metrics.Metrics, log zerolog.Logger, opts ...Option) *Collector {
	c := &Collector{
		cfg:      cfg,
		echo:     echo,
		metrics:  m,
		log:      log,
		dial:     dialRabbitMQ,
		openSink: openFileSink,
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Collector) State() State {
	return c.state
}

// Run connects, declares the topology, opens the log file and consumes until
// ctx is cancelled or a fatal error occurs. The log file and the session are
// closed on every exit path. Cancellation is a normal shutdown and yields a
// nil error.
func (c *Collector) Run(ctx context.Context) (err error) {
	var (
		session Session
		logSink LogSink
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrUnexpected, r)
		}
		if err != nil {
			c.log.Error().Err(err).Str("state", c.state.String()).Msg("collector failed")
		}
		cancel()
		c.teardown(logSink, session)
	}()

	c.transition(StateConnecting)
	session, err = c.dial(runCtx, c.cfg.Broker, c.log)
	if err != nil {
		if ctx.Err() != nil {
			c.log.Info().Msg("interrupted while connecting")
			return nil
		}
		return err
	}

	if err := session.DeclareTopology(c.cfg.Topology); err != nil {
		return err
	}
	c.transition(StateTopologyReady)

	c.log.Info().Str("path", c.cfg.LogFile).Msg("opening log file for appending")
	logSink, err = c.openSink(c.cfg.LogFile, sink.Options{SyncEachWrite: c.cfg.SyncWrites})
	if err != nil {
		return err
	}

	handler := NewHandler(logSink, c.echo, c.metrics, c.now)
	deliveries, err := session.Consume(runCtx, c.cfg.Topology.Queue, randutil.ConsumerTag(consumerPrefix))
	if err != nil {
		return err
	}
	c.transition(StateConsuming)
	c.log.Info().
		Str("queue", c.cfg.Topology.Queue).
		Str("path", c.cfg.LogFile).
		Msg("waiting for logs, press CTRL+C to stop")

	return c.consume(ctx, deliveries, handler, session)
}

func (c *Collector) consume(ctx context.Context, deliveries <-chan rabbitmq.Delivery, h *Handler, session Session) error {
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("interrupted by user, shutting down")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					c.log.Info().Msg("interrupted by user, shutting down")
					return nil
				}
				if err := session.Err(); err != nil {
					return err
				}
				return rabbitmq.ErrConnectionLost
			}

			c.stats.record(c.now(), len(d.Body))
			if err := h.Handle(d); err != nil {
				c.stats.drop()
				c.logDropped(d, err)
			}
		}
	}
}

func (c *Collector) logDropped(d rabbitmq.Delivery, err error) {
	ev := c.log.Warn()
	if errors.Is(err, sink.ErrFileIO) || errors.Is(err, sink.ErrClosed) {
		ev = c.log.Error()
	}
	ev.Err(err).
		Str("routing_key", d.RoutingKey).
		Int("size", len(d.Body)).
		Msg("message not written to log file")
}

// teardown closes the sink and then the session. A failure closing one does
// not prevent closing the other, and neither changes the run's result.
func (c *Collector) teardown(logSink LogSink, session Session) {
	c.transition(StateDraining)

	if logSink != nil {
		c.log.Info().Str("path", c.cfg.LogFile).Msg("closing log file")
		if err := logSink.Close(); err != nil {
			c.log.Error().Err(err).Msg("failed to close log file")
		}
	}
	if session != nil {
		c.log.Info().Msg("closing RabbitMQ connection")
		if err := session.Close(); err != nil {
			c.log.Error().Err(err).Msg("failed to close RabbitMQ connection")
		}
	}

	c.transition(StateClosed)
	c.log.Info().
		Int64("messages", c.stats.totalMessages).
		Int64("dropped", c.stats.dropped).
		Str("rate", formatRate(c.stats.msgPerSec(c.now()))).
		Str("avg_size", formatBytes(c.stats.avgSize())).
		Str("total_size", formatBytes(c.stats.totalBytes)).
		Msg("log collector stopped")
}

func (c *Collector) transition(to State) {
	from := c.state
	c.state = to
	c.metrics.SetState(int(to))
	c.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state change")
	if c.observe != nil {
		c.observe(from, to)
	}
}
