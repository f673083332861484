package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/queue"
)

const (
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 30 * time.Second

	publishTimeout = 5 * time.Second
)

// Publisher enqueues evaluation jobs.
type Publisher interface {
	Publish(ctx context.Context, job *domain.EvaluationJob) error
	Healthy() bool
	Close() error
}

type rabbitPublisher struct {
	url           string
	deliveryLimit int
	conn          *amqp.Connection
	channel       *amqp.Channel
	logger        *zap.Logger

	// pubMu serializes publishes so confirmations map to the right message.
	pubMu  sync.Mutex
	mu     sync.RWMutex
	closed bool
}

// NewRabbitMQPublisher connects, declares the job topology and starts a
// watcher that reconnects when the connection drops.
func NewRabbitMQPublisher(url string, deliveryLimit int, logger *zap.Logger) (Publisher, error) {
	p := &rabbitPublisher{
		url:           url,
		deliveryLimit: deliveryLimit,
		logger:        logger,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	go p.watchConnection()

	return p, nil
}

func (p *rabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq: channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}

	if err := queue.Declare(ch, p.deliveryLimit); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	p.logger.Info("RabbitMQ publisher initialized",
		zap.String("exchange", queue.Exchange),
		zap.String("queue", queue.Queue),
	)
	return nil
}

func (p *rabbitPublisher) watchConnection() {
	for {
		p.mu.RLock()
		if p.closed {
			p.mu.RUnlock()
			return
		}
		conn := p.conn
		p.mu.RUnlock()

		reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
		if !ok {
			return
		}

		p.logger.Warn("RabbitMQ connection lost, reconnecting...",
			zap.String("reason", reason.Error()),
		)

		p.mu.Lock()
		p.channel = nil
		p.mu.Unlock()

		delay := reconnectDelay
		for {
			p.mu.RLock()
			closed := p.closed
			p.mu.RUnlock()
			if closed {
				return
			}

			time.Sleep(delay)

			if err := p.connect(); err != nil {
				p.logger.Warn("RabbitMQ reconnect failed", zap.Error(err), zap.Duration("retry_in", delay))
				delay = min(delay*2, maxReconnectDelay)
				continue
			}

			p.logger.Info("RabbitMQ reconnected successfully")
			break
		}
	}
}

// Publish sends job as a persistent message and waits for the broker confirm.
func (p *rabbitPublisher) Publish(ctx context.Context, job *domain.EvaluationJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal job: %w", err)
	}

	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()

	if ch == nil {
		return fmt.Errorf("rabbitmq: channel not available (reconnecting)")
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.pubMu.Lock()
	defer p.pubMu.Unlock()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(publishCtx,
		queue.Exchange,
		queue.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.JobID.String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	acked, err := confirm.WaitContext(publishCtx)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish confirmation (job_id=%s): %w", job.JobID, err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq: broker nacked message (job_id=%s)", job.JobID)
	}

	p.logger.Debug("Published job to RabbitMQ",
		zap.String("job_id", job.JobID.String()),
		zap.String("submission_id", job.SubmissionID.String()),
		zap.Int("body_size", len(body)),
	)
	return nil
}

// Healthy reports whether the publisher currently holds an open channel.
func (p *rabbitPublisher) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.channel != nil && !p.channel.IsClosed()
}

func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
