package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/epalmerini/rabbitlog/internal/config"
)

// declarer is the subset of *amqp.Channel used to build the topology.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func declareTopology(ch declarer, t config.Topology) error {
	err := ch.ExchangeDeclare(
		t.Exchange,
		t.ExchangeType,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("%w: failed to declare exchange %q: %w", ErrTopology, t.Exchange, err)
	}

	_, err = ch.QueueDeclare(
		t.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("%w: failed to declare queue %q: %w", ErrTopology, t.Queue, err)
	}

	err = ch.QueueBind(
		t.Queue,
		t.BindingKey,
		t.Exchange,
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("%w: failed to bind queue %q to %q: %w", ErrTopology, t.Queue, t.Exchange, err)
	}
	return nil
}
