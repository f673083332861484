package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/queue"
)

const (
	maxReconnectDelay  = 30 * time.Second
	baseReconnectDelay = 1 * time.Second
)

// Consumer listens to RabbitMQ and dispatches JobMessages (with ack
// callbacks) to the worker pool.
type Consumer struct {
	url           string
	prefetch      int
	deliveryLimit int
	conn          *amqplib.Connection
	channel       *amqplib.Channel
	logger        *zap.Logger
	jobs          chan<- *domain.JobMessage

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// NewConsumer creates a consumer. prefetch caps unacknowledged deliveries
// and should match the pool size.
func NewConsumer(url string, prefetch, deliveryLimit int, jobs chan<- *domain.JobMessage, logger *zap.Logger) (*Consumer, error) {
	c := &Consumer{
		url:           url,
		prefetch:      prefetch,
		deliveryLimit: deliveryLimit,
		logger:        logger,
		jobs:          jobs,
		closeCh:       make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Consumer) connect() error {
	conn, err := amqplib.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}

	if err := queue.Declare(ch, c.deliveryLimit); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp topology: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	return nil
}

// Start consumes until ctx is cancelled, reconnecting with exponential
// backoff when the connection is lost.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-c.closeCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		c.logger.Warn("AMQP consumer lost connection, reconnecting...", zap.Error(err))

		for attempt := 0; ; attempt++ {
			delay := reconnectDelay(attempt)
			c.logger.Info("Reconnect attempt",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)

			select {
			case <-c.closeCh:
				return nil
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}

			if err := c.connect(); err != nil {
				c.logger.Error("Reconnect failed", zap.Error(err))
				continue
			}

			c.logger.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

func reconnectDelay(attempt int) time.Duration {
	return time.Duration(math.Min(
		float64(baseReconnectDelay)*math.Pow(2, float64(attempt)),
		float64(maxReconnectDelay),
	))
}

func (c *Consumer) consume(ctx context.Context) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("channel is nil")
	}

	deliveries, err := ch.Consume(
		queue.Queue,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	c.logger.Info("AMQP consumer started",
		zap.String("queue", queue.Queue),
		zap.Int("prefetch", c.prefetch),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("AMQP consumer stopping (context cancelled)")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			msg, err := toJobMessage(delivery)
			if err != nil {
				c.logger.Error("Failed to decode job",
					zap.Error(err),
					zap.String("message_id", delivery.MessageId),
				)
				_ = delivery.Nack(false, false) // dead-letter
				continue
			}

			c.logger.Debug("Received job from queue",
				zap.String("job_id", msg.Job.JobID.String()),
				zap.String("submission_id", msg.Job.SubmissionID.String()),
				zap.Int("attempt", msg.Attempt),
			)

			select {
			case c.jobs <- msg:
			case <-ctx.Done():
				_ = delivery.Nack(false, true)
				return nil
			}
		}
	}
}

// toJobMessage decodes a delivery and binds its ack callbacks.
func toJobMessage(d amqplib.Delivery) (*domain.JobMessage, error) {
	var job domain.EvaluationJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return nil, err
	}
	return &domain.JobMessage{
		Job:     &job,
		Attempt: queue.Attempt(d.Headers),
		Ack: func() error {
			return d.Ack(false)
		},
		Nack: func(requeue bool) error {
			return d.Nack(false, requeue)
		},
	}, nil
}

// Close shuts down the consumer.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
