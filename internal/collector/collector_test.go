package collector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/epalmerini/rabbitlog/internal/config"
	"github.com/epalmerini/rabbitlog/internal/rabbitmq"
	"github.com/epalmerini/rabbitlog/internal/sink"
)

type harness struct {
	session *fakeSession
	sink    *fakeSink
	echo    *fakeEcho
	states  []State

	dialErr   error
	dialFn    DialFunc
	openErr   error
	sinkPath  string
	sinkOpts  sink.Options
	sinkOpens int
}

func newHarness() *harness {
	return &harness{
		session: newFakeSession(),
		sink:    &fakeSink{},
		echo:    &fakeEcho{},
	}
}

func (h *harness) collector(cfg config.Config) *Collector {
	dial := h.dialFn
	if dial == nil {
		dial = func(context.Context, config.Broker, zerolog.Logger) (Session, error) {
			if h.dialErr != nil {
				return nil, h.dialErr
			}
			return h.session, nil
		}
	}
	return New(cfg, h.echo, nil, zerolog.Nop(),
		WithDialer(dial),
		WithSinkOpener(func(path string, opts sink.Options) (LogSink, error) {
			h.sinkOpens++
			h.sinkPath = path
			h.sinkOpts = opts
			if h.openErr != nil {
				return nil, h.openErr
			}
			return h.sink, nil
		}),
		WithClock(fixedClock()),
		WithStateObserver(func(_, to State) { h.states = append(h.states, to) }),
	)
}

type runResult struct {
	err error
}

func start(ctx context.Context, c *Collector) <-chan runResult {
	done := make(chan runResult, 1)
	go func() { done <- runResult{err: c.Run(ctx)} }()
	return done
}

func wait(t *testing.T, done <-chan runResult) error {
	t.Helper()
	select {
	case r := <-done:
		return r.err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRun_RoundTripThenInterrupt(t *testing.T) {
	h := newHarness()
	cfg := config.Default()
	c := h.collector(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := start(ctx, c)

	h.session.deliveries <- rabbitmq.Delivery{RoutingKey: "any.key", Body: []byte("hello")}
	h.session.deliveries <- rabbitmq.Delivery{RoutingKey: "bad", Body: []byte{0xff, 0xfe}}
	h.session.deliveries <- rabbitmq.Delivery{RoutingKey: "app.info", Body: []byte("second")}
	cancel()

	if err := wait(t, done); err != nil {
		t.Fatalf("interrupt should end the run cleanly, got %v", err)
	}

	wantLines := []string{
		"2026-10-15 09:30:05.123 | RK: any.key | hello\n",
		"2026-10-15 09:30:05.123 | RK: app.info | second\n",
	}
	if !reflect.DeepEqual(h.sink.lines, wantLines) {
		t.Errorf("lines = %q, want %q", h.sink.lines, wantLines)
	}
	if len(h.echo.received) != 2 {
		t.Errorf("echoed %d messages, want 2", len(h.echo.received))
	}

	wantStates := []State{StateConnecting, StateTopologyReady, StateConsuming, StateDraining, StateClosed}
	if !reflect.DeepEqual(h.states, wantStates) {
		t.Errorf("states = %v, want %v", h.states, wantStates)
	}
	if c.State() != StateClosed {
		t.Errorf("final state = %v", c.State())
	}

	if len(h.session.declared) != 1 || h.session.declared[0] != cfg.Topology {
		t.Errorf("declared = %+v", h.session.declared)
	}
	if h.session.consumedQ != "system-a.log.queue" {
		t.Errorf("consumed queue = %q", h.session.consumedQ)
	}
	if !strings.HasPrefix(h.session.consumerTag, "rabbitlog-") {
		t.Errorf("consumer tag = %q", h.session.consumerTag)
	}
	if h.sinkPath != "received_logs.log" || !h.sinkOpts.SyncEachWrite {
		t.Errorf("sink opened with %q %+v", h.sinkPath, h.sinkOpts)
	}

	if h.sink.closes != 1 || h.session.closes != 1 {
		t.Errorf("closes: sink=%d session=%d, want 1 each", h.sink.closes, h.session.closes)
	}
	if err := h.sink.Append("late\n"); !errors.Is(err, sink.ErrClosed) {
		t.Errorf("Append after run = %v, want ErrClosed", err)
	}
}

func TestRun_DialFailure(t *testing.T) {
	tests := []struct {
		name    string
		dialErr error
		want    error
	}{
		{
			name:    "unreachable",
			dialErr: fmt.Errorf("%w: dial tcp 10.0.0.1:5672: connection refused", rabbitmq.ErrConnection),
			want:    rabbitmq.ErrConnection,
		},
		{
			name:    "bad credentials",
			dialErr: fmt.Errorf("%w: username or password not allowed", rabbitmq.ErrAuthentication),
			want:    rabbitmq.ErrAuthentication,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.dialErr = tt.dialErr

			err := h.collector(config.Default()).Run(context.Background())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if h.sinkOpens != 0 {
				t.Error("log file must not be opened when the connection fails")
			}
			wantStates := []State{StateConnecting, StateDraining, StateClosed}
			if !reflect.DeepEqual(h.states, wantStates) {
				t.Errorf("states = %v, want %v", h.states, wantStates)
			}
		})
	}
}

func TestRun_TopologyFailure(t *testing.T) {
	h := newHarness()
	h.session.topologyErr = fmt.Errorf("%w: exchange %q: PRECONDITION_FAILED", rabbitmq.ErrTopology, "logging.exchange")

	err := h.collector(config.Default()).Run(context.Background())
	if !errors.Is(err, rabbitmq.ErrTopology) {
		t.Fatalf("err = %v, want ErrTopology", err)
	}
	if h.sinkOpens != 0 {
		t.Error("log file must not be opened when the topology fails")
	}
	if h.session.closes != 1 {
		t.Errorf("session closes = %d, want 1", h.session.closes)
	}
	wantStates := []State{StateConnecting, StateDraining, StateClosed}
	if !reflect.DeepEqual(h.states, wantStates) {
		t.Errorf("states = %v, want %v", h.states, wantStates)
	}
}

func TestRun_SinkOpenFailure(t *testing.T) {
	h := newHarness()
	h.openErr = fmt.Errorf("%w: open /readonly/x.log: permission denied", sink.ErrFileIO)

	err := h.collector(config.Default()).Run(context.Background())
	if !errors.Is(err, sink.ErrFileIO) {
		t.Fatalf("err = %v, want ErrFileIO", err)
	}
	if h.session.closes != 1 {
		t.Errorf("session closes = %d, want 1", h.session.closes)
	}
	if h.session.consumedQ != "" {
		t.Error("consumption must not start without a log file")
	}
	wantStates := []State{StateConnecting, StateTopologyReady, StateDraining, StateClosed}
	if !reflect.DeepEqual(h.states, wantStates) {
		t.Errorf("states = %v, want %v", h.states, wantStates)
	}
}

func TestRun_ConsumeFailure(t *testing.T) {
	h := newHarness()
	h.session.consumeErr = fmt.Errorf("%w: basic.consume: channel closed", rabbitmq.ErrConnectionLost)

	err := h.collector(config.Default()).Run(context.Background())
	if !errors.Is(err, rabbitmq.ErrConnectionLost) {
		t.Fatalf("err = %v, want ErrConnectionLost", err)
	}
	if h.sink.closes != 1 || h.session.closes != 1 {
		t.Errorf("closes: sink=%d session=%d, want 1 each", h.sink.closes, h.session.closes)
	}
}

func TestRun_ConnectionLost(t *testing.T) {
	tests := []struct {
		name       string
		sessionErr error
	}{
		{name: "with close reason", sessionErr: fmt.Errorf("%w: CONNECTION_FORCED", rabbitmq.ErrConnectionLost)},
		{name: "without close reason"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.session.err = tt.sessionErr
			done := start(context.Background(), h.collector(config.Default()))

			h.session.deliveries <- rabbitmq.Delivery{RoutingKey: "k", Body: []byte("before")}
			close(h.session.deliveries)

			err := wait(t, done)
			if !errors.Is(err, rabbitmq.ErrConnectionLost) {
				t.Fatalf("err = %v, want ErrConnectionLost", err)
			}
			if len(h.sink.lines) != 1 {
				t.Errorf("lines = %q, want the message received before the loss", h.sink.lines)
			}
			if h.sink.closes != 1 || h.session.closes != 1 {
				t.Errorf("closes: sink=%d session=%d, want 1 each", h.sink.closes, h.session.closes)
			}
		})
	}
}

func TestRun_WriteFailureKeepsConsuming(t *testing.T) {
	h := newHarness()
	h.sink.appendErr = fmt.Errorf("%w: %w", sink.ErrFileIO, errDiskFull)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := start(ctx, h.collector(config.Default()))

	h.session.deliveries <- rabbitmq.Delivery{RoutingKey: "k", Body: []byte("one")}
	h.session.deliveries <- rabbitmq.Delivery{RoutingKey: "k", Body: []byte("two")}
	cancel()

	if err := wait(t, done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.echo.received) != 2 {
		t.Errorf("echoed %d messages, want 2", len(h.echo.received))
	}
}

func TestRun_PanicIsUnexpected(t *testing.T) {
	h := newHarness()
	h.echo.onRecv = func(string, string) { panic("boom") }
	done := start(context.Background(), h.collector(config.Default()))

	h.session.deliveries <- rabbitmq.Delivery{RoutingKey: "k", Body: []byte("x")}

	err := wait(t, done)
	if !errors.Is(err, ErrUnexpected) {
		t.Fatalf("err = %v, want ErrUnexpected", err)
	}
	if h.sink.closes != 1 || h.session.closes != 1 {
		t.Errorf("closes: sink=%d session=%d, want 1 each", h.sink.closes, h.session.closes)
	}
	wantStates := []State{StateConnecting, StateTopologyReady, StateConsuming, StateDraining, StateClosed}
	if !reflect.DeepEqual(h.states, wantStates) {
		t.Errorf("states = %v, want %v", h.states, wantStates)
	}
}

func TestRun_InterruptWhileConnecting(t *testing.T) {
	h := newHarness()
	dialing := make(chan struct{})
	h.dialFn = func(ctx context.Context, _ config.Broker, _ zerolog.Logger) (Session, error) {
		close(dialing)
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", rabbitmq.ErrConnection, ctx.Err())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, h.collector(config.Default()))
	<-dialing
	cancel()

	if err := wait(t, done); err != nil {
		t.Fatalf("interrupt while connecting should end cleanly, got %v", err)
	}
	if h.sinkOpens != 0 {
		t.Error("log file must not be opened")
	}
	wantStates := []State{StateConnecting, StateDraining, StateClosed}
	if !reflect.DeepEqual(h.states, wantStates) {
		t.Errorf("states = %v, want %v", h.states, wantStates)
	}
}

func TestRun_TeardownErrorsDoNotChangeResult(t *testing.T) {
	h := newHarness()
	h.sink.closeErr = fmt.Errorf("%w: close: %w", sink.ErrFileIO, errDiskFull)
	h.session.closeErr = errors.New("connection already closed")

	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, h.collector(config.Default()))
	h.session.deliveries <- rabbitmq.Delivery{RoutingKey: "k", Body: []byte("x")}
	cancel()

	if err := wait(t, done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.sink.closes != 1 || h.session.closes != 1 {
		t.Errorf("both must be closed even when the first fails: sink=%d session=%d", h.sink.closes, h.session.closes)
	}
}

func TestRun_WritesToRealFile(t *testing.T) {
	h := newHarness()
	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "logs", "received_logs.log")

	c := New(cfg, h.echo, nil, zerolog.Nop(),
		WithDialer(func(context.Context, config.Broker, zerolog.Logger) (Session, error) {
			return h.session, nil
		}),
		WithClock(fixedClock()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := start(ctx, c)
	h.session.deliveries <- rabbitmq.Delivery{RoutingKey: "any.key", Body: []byte("hello")}
	cancel()
	if err := wait(t, done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	if want := "2026-10-15 09:30:05.123 | RK: any.key | hello\n"; string(data) != want {
		t.Errorf("file = %q, want %q", data, want)
	}
}
