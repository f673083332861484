// Package queue holds the RabbitMQ topology shared by the job publisher and
// the worker consumer. Both sides declare it so either can start first.
package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	Exchange     = "judge.direct"
	RoutingKey   = "evaluate"
	Queue        = "evaluation_jobs"
	DeadExchange = "judge.dlx"
	DeadQueue    = "evaluation_jobs.dlq"

	// DeliveryCountHeader is set by quorum queues on redelivered messages.
	DeliveryCountHeader = "x-delivery-count"
)

// Declarer is the part of *amqp.Channel used to declare the topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// QueueArgs returns the arguments of the main queue. Declaring a queue with
// different arguments than an existing one fails, so every caller must use
// these.
func QueueArgs(deliveryLimit int) amqp.Table {
	return amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          int64(deliveryLimit),
		"x-dead-letter-exchange":    DeadExchange,
		"x-dead-letter-routing-key": DeadQueue,
	}
}

// Declare idempotently creates the exchanges, queues and bindings.
func Declare(ch Declarer, deliveryLimit int) error {
	if err := ch.ExchangeDeclare(Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(DeadExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(DeadQueue, true, false, false, false, amqp.Table{"x-queue-type": "quorum"}); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(DeadQueue, DeadQueue, DeadExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(Queue, true, false, false, false, QueueArgs(deliveryLimit)); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(Queue, RoutingKey, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Attempt derives the 1-based attempt number from a delivery's headers.
func Attempt(headers amqp.Table) int {
	switch v := headers[DeliveryCountHeader].(type) {
	case int64:
		return int(v) + 1
	case int32:
		return int(v) + 1
	case int:
		return v + 1
	}
	return 1
}
