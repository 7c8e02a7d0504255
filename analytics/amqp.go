package analytics

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// AMQPConnection abstracts the RabbitMQ connection so tests can inject a
// mock instead of a live broker.
type AMQPConnection interface {
	Channel() (AMQPChannel, error)
	Close() error
}

// AMQPChannel abstracts the publish-side channel operations the sink uses.
type AMQPChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPDialer opens AMQP connections. Injecting a dialer is how tests swap
// the broker out.
type AMQPDialer interface {
	Dial(url string) (AMQPConnection, error)
}

// RealAMQPDialer dials a live RabbitMQ server.
type RealAMQPDialer struct{}

func (d *RealAMQPDialer) Dial(url string) (AMQPConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &RealAMQPConnection{conn: conn}, nil
}

// RealAMQPConnection wraps *amqp.Connection behind the AMQPConnection
// interface.
type RealAMQPConnection struct {
	conn *amqp.Connection
}

func (r *RealAMQPConnection) Channel() (AMQPChannel, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &RealAMQPChannel{ch: ch}, nil
}

func (r *RealAMQPConnection) Close() error {
	return r.conn.Close()
}

// RealAMQPChannel wraps *amqp.Channel behind the AMQPChannel interface.
type RealAMQPChannel struct {
	ch *amqp.Channel
}

func (r *RealAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return r.ch.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (r *RealAMQPChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return r.ch.Publish(exchange, key, mandatory, immediate, msg)
}

func (r *RealAMQPChannel) Close() error {
	return r.ch.Close()
}

// AMQPSink publishes events as JSON onto a durable queue. The queue survives
// broker restarts and messages are marked persistent, so turn records are
// not lost to a bounce.
type AMQPSink struct {
	connection AMQPConnection
	channel    AMQPChannel
	queue      string
}

// NewAMQPSink connects to the broker at uri and declares the queue.
func NewAMQPSink(uri, queue string) (*AMQPSink, error) {
	return NewAMQPSinkWithDialer(uri, queue, &RealAMQPDialer{})
}

// NewAMQPSinkWithDialer is the dependency-injection constructor used by
// tests.
func NewAMQPSinkWithDialer(uri, queue string, dialer AMQPDialer) (*AMQPSink, error) {
	conn, err := dialer.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to analytics broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open analytics channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare analytics queue: %w", err)
	}

	return &AMQPSink{connection: conn, channel: ch, queue: queue}, nil
}

// Record serializes the event and publishes it to the queue.
func (s *AMQPSink) Record(event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize analytics event: %w", err)
	}

	err = s.channel.Publish(
		"",      // default exchange
		s.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.At,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish analytics event: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (s *AMQPSink) Close() error {
	var firstErr error
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close analytics channel: %w", err)
		}
	}
	if s.connection != nil {
		if err := s.connection.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close analytics connection: %w", err)
		}
	}
	return firstErr
}
