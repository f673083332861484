package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/metrics"
	"github.com/Harsh-BH/sentinel-judge/internal/usecase"
)

// RetryPolicy decides how often a failing job is redelivered.
type RetryPolicy struct {
	// MaxAttempts is the total number of deliveries, first one included.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// LockWait is the delay before requeueing a job whose submission is
	// leased by another worker. It should cover the lease TTL.
	LockWait time.Duration
}

// Backoff returns the delay before redelivering after the given attempt.
// It doubles from BaseBackoff and is capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseBackoff <= 0 {
		return 0
	}
	delay := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		if p.MaxBackoff > 0 && delay > p.MaxBackoff/2 {
			return p.MaxBackoff
		}
		delay *= 2
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// WorkerPool manages a fixed-size pool of goroutines that evaluate jobs.
type WorkerPool struct {
	size       int
	jobs       <-chan *domain.JobMessage
	evaluateUC *usecase.EvaluateSubmissionUsecase
	retry      RetryPolicy
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, jobs <-chan *domain.JobMessage, evaluateUC *usecase.EvaluateSubmissionUsecase, retry RetryPolicy, logger *zap.Logger) *WorkerPool {
	return &WorkerPool{
		size:       size,
		jobs:       jobs,
		evaluateUC: evaluateUC,
		retry:      retry,
		logger:     logger,
	}
}

// Start launches all worker goroutines. Call Stop to wait for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current jobs and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
			return
		case msg, ok := <-p.jobs:
			if !ok {
				p.logger.Debug("Job channel closed", zap.Int("worker_id", id))
				return
			}
			p.handle(ctx, id, msg)
		}
	}
}

// handle runs one job to completion. A job already picked up is finished
// even if ctx is cancelled meanwhile; only the retry wait is cut short.
func (p *WorkerPool) handle(ctx context.Context, id int, msg *domain.JobMessage) {
	job := msg.Job
	log := p.logger.With(
		zap.Int("worker_id", id),
		zap.String("submission_id", job.SubmissionID.String()),
		zap.String("job_id", job.JobID.String()),
		zap.Int("attempt", msg.Attempt),
	)

	log.Info("Worker processing job", zap.String("language", string(job.Language)))

	start := time.Now()
	isDuplicate, err := p.execute(context.WithoutCancel(ctx), job, log)
	elapsed := time.Since(start).Seconds()

	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case isDuplicate:
		outcome = "duplicate"
	}
	metrics.EvaluationsTotal.WithLabelValues(string(job.Language), outcome).Inc()
	metrics.EvaluationDuration.WithLabelValues(string(job.Language)).Observe(elapsed)

	if err != nil {
		p.finish(ctx, msg, err, log)
		return
	}

	if isDuplicate {
		log.Debug("Duplicate job skipped")
	}
	if ackErr := msg.Ack(); ackErr != nil {
		log.Error("Failed to ACK message", zap.Error(ackErr))
	}
}

func (p *WorkerPool) execute(ctx context.Context, job *domain.EvaluationJob, log *zap.Logger) (isDuplicate bool, err error) {
	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Worker panic recovered", zap.Any("panic", r))
			// The evaluation state is unknown; do not run it again.
			err = fmt.Errorf("%w: panic: %v", domain.ErrIndeterminate, r)
		}
	}()
	return p.evaluateUC.Execute(ctx, job)
}

// finish settles a failed job: requeue while attempts remain and the error
// is transient, otherwise mark the submission failed and dead-letter it.
// A job whose submission is leased elsewhere is always requeued; its outcome
// belongs to the lease holder or, once the lease lapses, to a later delivery.
func (p *WorkerPool) finish(ctx context.Context, msg *domain.JobMessage, cause error, log *zap.Logger) {
	if errors.Is(cause, domain.ErrLockHeld) {
		log.Info("Submission leased elsewhere, requeueing", zap.Duration("backoff", p.retry.LockWait))
		p.requeue(ctx, msg, p.retry.LockWait, log)
		return
	}

	if !domain.IsPermanent(cause) && msg.Attempt < p.retry.MaxAttempts {
		delay := p.retry.Backoff(msg.Attempt)
		log.Warn("Job failed, requeueing", zap.Error(cause), zap.Duration("backoff", delay))
		p.requeue(ctx, msg, delay, log)
		return
	}

	log.Error("Job failed permanently", zap.Error(cause))
	if err := p.evaluateUC.Abandon(context.WithoutCancel(ctx), msg.Job, cause); err != nil {
		log.Error("Failed to abandon submission", zap.Error(err))
	}
	// Dead-letter; requeueing a deterministic failure would loop forever.
	if nackErr := msg.Nack(false); nackErr != nil {
		log.Error("Failed to NACK message", zap.Error(nackErr))
	}
}

func (p *WorkerPool) requeue(ctx context.Context, msg *domain.JobMessage, delay time.Duration, log *zap.Logger) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	if nackErr := msg.Nack(true); nackErr != nil {
		log.Error("Failed to NACK message", zap.Error(nackErr))
	}
}
