package rabbitmq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrConnection means the broker could not be reached or the session
	// could not be established.
	ErrConnection = errors.New("broker connection failed")
	// ErrAuthentication means the broker rejected the credentials.
	ErrAuthentication = errors.New("broker rejected credentials")
	// ErrTopology means an exchange, queue or binding could not be declared.
	ErrTopology = errors.New("topology setup failed")
	// ErrConnectionLost means an established session was closed by the broker
	// or the network.
	ErrConnectionLost = errors.New("broker connection lost")
)

// classifyDialError wraps a dial failure in ErrAuthentication or ErrConnection.
func classifyDialError(err error) error {
	if isAuthError(err) {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

func isAuthError(err error) bool {
	if errors.Is(err, amqp.ErrCredentials) || errors.Is(err, amqp.ErrSASL) {
		return true
	}
	var amqpErr *amqp.Error
	return errors.As(err, &amqpErr) && amqpErr.Code == amqp.AccessRefused
}
