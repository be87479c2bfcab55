package collector

import (
	"context"
	"errors"
	"sync"

	"github.com/epalmerini/rabbitlog/internal/config"
	"github.com/epalmerini/rabbitlog/internal/rabbitmq"
	"github.com/epalmerini/rabbitlog/internal/sink"
)

type receivedMsg struct {
	routingKey string
	text       string
}

type fakeEcho struct {
	mu       sync.Mutex
	received []receivedMsg
	onRecv   func(routingKey, text string)
}

func (e *fakeEcho) Received(routingKey, text string) {
	if e.onRecv != nil {
		e.onRecv(routingKey, text)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.received = append(e.received, receivedMsg{routingKey, text})
}

type fakeSink struct {
	lines     []string
	appendErr error
	closeErr  error
	closed    bool
	closes    int
}

func (s *fakeSink) Append(line string) error {
	if s.closed {
		return sink.ErrClosed
	}
	if s.appendErr != nil {
		return s.appendErr
	}
	s.lines = append(s.lines, line)
	return nil
}

func (s *fakeSink) Close() error {
	s.closes++
	s.closed = true
	return s.closeErr
}

type fakeSession struct {
	deliveries  chan rabbitmq.Delivery
	topologyErr error
	consumeErr  error
	err         error
	closeErr    error

	declared    []config.Topology
	consumedQ   string
	consumerTag string
	closes      int
}

func newFakeSession() *fakeSession {
	return &fakeSession{deliveries: make(chan rabbitmq.Delivery)}
}

func (s *fakeSession) DeclareTopology(t config.Topology) error {
	s.declared = append(s.declared, t)
	return s.topologyErr
}

func (s *fakeSession) Consume(_ context.Context, queue, consumerTag string) (<-chan rabbitmq.Delivery, error) {
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	s.consumedQ = queue
	s.consumerTag = consumerTag
	return s.deliveries, nil
}

func (s *fakeSession) Err() error {
	return s.err
}

func (s *fakeSession) Close() error {
	s.closes++
	return s.closeErr
}

var errDiskFull = errors.New("no space left on device")
