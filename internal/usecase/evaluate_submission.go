package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/client"
	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/metrics"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

// EvaluateSubmissionUsecase runs one evaluation job end to end: lock,
// evaluate, deliver, credit.
type EvaluateSubmissionUsecase struct {
	idempotent  repository.IdempotencyStore
	evaluator   repository.Evaluator
	deliverer   repository.ResultDeliverer
	leaderboard repository.Leaderboard
	creditRetry client.RetryPolicy
	heartbeat   time.Duration
	logger      *zap.Logger
}

// NewEvaluateSubmissionUsecase creates a new EvaluateSubmissionUsecase.
func NewEvaluateSubmissionUsecase(
	idempotent repository.IdempotencyStore,
	evaluator repository.Evaluator,
	deliverer repository.ResultDeliverer,
	leaderboard repository.Leaderboard,
	creditRetry client.RetryPolicy,
	heartbeat time.Duration,
	logger *zap.Logger,
) *EvaluateSubmissionUsecase {
	return &EvaluateSubmissionUsecase{
		idempotent:  idempotent,
		evaluator:   evaluator,
		deliverer:   deliverer,
		leaderboard: leaderboard,
		creditRetry: creditRetry,
		heartbeat:   heartbeat,
		logger:      logger,
	}
}

// Execute processes a single job. Returns (isDuplicate, error). A submission
// already completed is a duplicate. A submission leased by another worker
// yields domain.ErrLockHeld. On any other error the lease is released so a
// redelivery can try again; domain.IsPermanent tells the caller whether that
// is worth it.
func (uc *EvaluateSubmissionUsecase) Execute(ctx context.Context, job *domain.EvaluationJob) (bool, error) {
	if err := job.Validate(); err != nil {
		return false, err
	}
	log := uc.logger.With(
		zap.String("submission_id", job.SubmissionID.String()),
		zap.String("job_id", job.JobID.String()),
	)

	state, err := uc.idempotent.AcquireLock(ctx, job.SubmissionID)
	if err != nil {
		log.Error("Failed to acquire idempotency lock", zap.Error(err))
		return false, err
	}
	switch state {
	case repository.LockCompleted:
		log.Info("Duplicate message detected, skipping")
		return true, nil
	case repository.LockHeld:
		log.Info("Submission leased by another worker")
		return false, domain.ErrLockHeld
	}

	if err := uc.runLeased(ctx, job, log); err != nil {
		if rerr := uc.idempotent.ReleaseLock(ctx, job.SubmissionID); rerr != nil {
			log.Warn("Failed to release idempotency lock", zap.Error(rerr))
		}
		return false, err
	}

	if err := uc.idempotent.MarkCompleted(ctx, job.SubmissionID); err != nil {
		log.Warn("Failed to mark submission completed", zap.Error(err))
	}
	return false, nil
}

func (uc *EvaluateSubmissionUsecase) runLeased(ctx context.Context, job *domain.EvaluationJob, log *zap.Logger) error {
	stop := uc.keepAlive(ctx, job, log)
	defer stop()
	return uc.run(ctx, job, log)
}

// keepAlive refreshes the lease until the returned stop func is called.
func (uc *EvaluateSubmissionUsecase) keepAlive(ctx context.Context, job *domain.EvaluationJob, log *zap.Logger) func() {
	if uc.heartbeat <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(uc.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := uc.idempotent.RefreshLock(ctx, job.SubmissionID); err != nil && ctx.Err() == nil {
					log.Warn("Failed to refresh idempotency lock", zap.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func (uc *EvaluateSubmissionUsecase) run(ctx context.Context, job *domain.EvaluationJob, log *zap.Logger) error {
	// Best effort: a lost "processing" update does not block evaluation.
	if err := uc.deliverer.Deliver(ctx, job.SubmissionID, domain.StatusProcessing, nil); err != nil {
		metrics.DeliveryFailures.WithLabelValues(string(domain.StatusProcessing)).Inc()
		log.Warn("Failed to deliver processing status", zap.Error(err))
	}

	verdicts, err := uc.evaluator.Evaluate(ctx, job)
	if err != nil {
		if !domain.IsPermanent(err) {
			metrics.SandboxFailures.Inc()
		}
		log.Error("Evaluation failed", zap.Error(err))
		return err
	}
	for _, v := range verdicts {
		metrics.VerdictsTotal.WithLabelValues(string(v)).Inc()
	}

	err = uc.deliverer.Deliver(ctx, job.SubmissionID, domain.StatusCompleted, verdicts)
	switch {
	case errors.Is(err, domain.ErrStatusConflict):
		// An earlier attempt already finished this submission.
		log.Info("Submission already terminal, treating completed delivery as done")
	case err != nil:
		metrics.DeliveryFailures.WithLabelValues(string(domain.StatusCompleted)).Inc()
		log.Error("Failed to deliver verdicts", zap.Error(err))
		return fmt.Errorf("deliver verdicts: %w", err)
	}

	if verdicts.FullyAccepted() {
		if err := uc.credit(ctx, job, log); err != nil {
			return err
		}
	}

	log.Info("Submission evaluated",
		zap.Int("test_cases", len(verdicts)),
		zap.Bool("accepted", verdicts.FullyAccepted()),
	)
	return nil
}

func (uc *EvaluateSubmissionUsecase) credit(ctx context.Context, job *domain.EvaluationJob, log *zap.Logger) error {
	var credited bool
	op := func() error {
		ok, err := uc.leaderboard.Credit(ctx, job.SubmissionID.String(), job.UserID, job.Problem.Difficulty)
		if err != nil {
			if domain.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		credited = ok
		return nil
	}
	if err := backoff.Retry(op, uc.creditRetry.BackOff(ctx)); err != nil {
		log.Error("Failed to credit leaderboard", zap.Error(err))
		return fmt.Errorf("credit leaderboard: %w", err)
	}
	if credited {
		metrics.LeaderboardCredits.WithLabelValues(string(job.Problem.Difficulty)).Inc()
	}
	return nil
}

// Abandon gives up on a job: the submission is moved to failed with an
// empty verdict map so it never stays in processing.
func (uc *EvaluateSubmissionUsecase) Abandon(ctx context.Context, job *domain.EvaluationJob, cause error) error {
	log := uc.logger.With(
		zap.String("submission_id", job.SubmissionID.String()),
		zap.String("job_id", job.JobID.String()),
	)

	err := uc.deliverer.Deliver(ctx, job.SubmissionID, domain.StatusFailed, domain.VerdictMap{})
	switch {
	case err == nil, errors.Is(err, domain.ErrStatusConflict):
	default:
		metrics.DeliveryFailures.WithLabelValues(string(domain.StatusFailed)).Inc()
		log.Error("Failed to deliver failed status", zap.Error(err), zap.NamedError("cause", cause))
		return fmt.Errorf("deliver failed status: %w", err)
	}

	if err := uc.idempotent.MarkCompleted(ctx, job.SubmissionID); err != nil {
		log.Warn("Failed to mark abandoned submission", zap.Error(err))
	}
	log.Warn("Submission abandoned", zap.NamedError("cause", cause))
	return nil
}
