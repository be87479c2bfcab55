package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/epalmerini/rabbitlog/internal/config"
)

const (
	heartbeat = 10 * time.Second
	locale    = "en_US"
)

type Delivery struct {
	RoutingKey      string
	Exchange        string
	ContentType     string
	ContentEncoding string
	Timestamp       time.Time
	Body            []byte
	MessageID       string
}

// Session is one connection plus the channel used to declare topology and
// consume. It is owned by a single goroutine.
type Session struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	closed   chan *amqp.Error
	closeErr *amqp.Error
	log      zerolog.Logger
}

// Dial connects to the broker described by cfg and opens a channel.
// Failures wrap ErrAuthentication when the broker refused the credentials
// and ErrConnection otherwise. There is no retry.
func Dial(ctx context.Context, cfg config.Broker, log zerolog.Logger) (*Session, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(cfg.ConnectionName)

	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("vhost", cfg.VHost).Msg("connecting to RabbitMQ")

	conn, err := amqp.DialConfig(brokerURL(cfg), amqp.Config{
		SASL: []amqp.Authentication{
			&amqp.PlainAuth{Username: cfg.Username, Password: cfg.Password},
		},
		Vhost:      cfg.VHost,
		Heartbeat:  heartbeat,
		Locale:     locale,
		Properties: props,
		Dial:       contextDialer(ctx, cfg.DialTimeout),
	})
	if err != nil {
		return nil, classifyDialError(err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%w: failed to open channel: %w", ErrConnection, err), conn.Close())
	}

	s := &Session{
		conn:    conn,
		channel: ch,
		closed:  conn.NotifyClose(make(chan *amqp.Error, 1)),
		log:     log,
	}
	log.Info().Str("addr", cfg.Addr()).Msg("connected to RabbitMQ")
	return s, nil
}

func brokerURL(cfg config.Broker) string {
	u := url.URL{Scheme: "amqp", Host: cfg.Addr(), Path: "/"}
	return u.String()
}

// contextDialer bounds the TCP connect and the AMQP handshake by timeout.
// amqp091-go clears the deadline once the handshake completes.
func contextDialer(ctx context.Context, timeout time.Duration) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
				return nil, errors.Join(err, conn.Close())
			}
		}
		return conn, nil
	}
}

// DeclareTopology declares the exchange and queue described by t and binds
// them. Safe to call repeatedly against an existing, identical topology.
func (s *Session) DeclareTopology(t config.Topology) error {
	if err := declareTopology(s.channel, t); err != nil {
		return err
	}
	s.log.Info().
		Str("exchange", t.Exchange).
		Str("queue", t.Queue).
		Str("binding_key", t.BindingKey).
		Msg("topology ready")
	return nil
}

// Consume registers an auto-ack consumer on queue. The returned channel is
// unbuffered and is closed when ctx is cancelled or the broker stops
// delivering; Err reports which.
func (s *Session) Consume(ctx context.Context, queue, consumerTag string) (<-chan Delivery, error) {
	msgs, err := s.channel.Consume(
		queue,
		consumerTag,
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	deliveries := make(chan Delivery)

	go func() {
		defer close(deliveries)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case deliveries <- toDelivery(msg):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return deliveries, nil
}

func toDelivery(msg amqp.Delivery) Delivery {
	return Delivery{
		RoutingKey:      msg.RoutingKey,
		Exchange:        msg.Exchange,
		ContentType:     msg.ContentType,
		ContentEncoding: msg.ContentEncoding,
		Timestamp:       msg.Timestamp,
		Body:            msg.Body,
		MessageID:       msg.MessageId,
	}
}

// Err returns ErrConnectionLost wrapping the broker's close reason if the
// connection was closed from the other side, nil otherwise.
func (s *Session) Err() error {
	if s.closeErr == nil {
		select {
		case amqpErr, ok := <-s.closed:
			if ok && amqpErr != nil {
				s.closeErr = amqpErr
			}
		default:
		}
	}
	if s.closeErr != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, s.closeErr)
	}
	if s.conn.IsClosed() {
		return ErrConnectionLost
	}
	return nil
}

// Close closes the channel and the connection if it is still open.
func (s *Session) Close() error {
	if s.conn.IsClosed() {
		return nil
	}
	chanErr := s.channel.Close()
	return errors.Join(chanErr, s.conn.Close())
}
