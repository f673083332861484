package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// SubmissionRepository persists submission records.
// Implementations must be safe for concurrent use.
type SubmissionRepository interface {
	// Create inserts a new submission.
	Create(ctx context.Context, sub *domain.Submission) error

	// GetByID retrieves a submission by its UUID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error)

	// ListByProblem returns up to limit submissions for a problem, newest first.
	ListByProblem(ctx context.Context, problemID string, limit int) ([]*domain.Submission, error)

	// Delete removes a submission. Returns ErrSubmissionNotFound if absent.
	Delete(ctx context.Context, id uuid.UUID) error

	// UpdateStatus moves a submission to status and stores verdicts, but only
	// if its current status is one of domain.TransitionSources(status).
	// Returns ErrSubmissionNotFound or ErrInvalidTransition otherwise.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, verdicts domain.VerdictMap) error

	// Ping checks connectivity to the store.
	Ping(ctx context.Context) error
}

// LockState is the outcome of an idempotency acquire.
type LockState int

const (
	// LockAcquired means the caller now owns the submission.
	LockAcquired LockState = iota
	// LockHeld means another worker holds a live lease on the submission.
	LockHeld
	// LockCompleted means the submission was already fully processed.
	LockCompleted
)

// IdempotencyStore guards a submission against concurrent or repeated evaluation.
// A lease expires unless refreshed, so a crashed owner frees it on its own.
type IdempotencyStore interface {
	// AcquireLock takes the lease unless the submission is completed or leased.
	AcquireLock(ctx context.Context, submissionID uuid.UUID) (LockState, error)

	// RefreshLock extends a held lease.
	RefreshLock(ctx context.Context, submissionID uuid.UUID) error

	// ReleaseLock drops the lease so a redelivery can retry.
	ReleaseLock(ctx context.Context, submissionID uuid.UUID) error

	// MarkCompleted records the submission as done and drops the lease.
	MarkCompleted(ctx context.Context, submissionID uuid.UUID) error
}

// ProblemFetcher reads problems from the Problem Service.
type ProblemFetcher interface {
	GetProblem(ctx context.Context, problemID string) (*domain.Problem, error)
}

// ResultDeliverer sends status updates to the submission record store.
type ResultDeliverer interface {
	Deliver(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, verdicts domain.VerdictMap) error
}

// Evaluator produces a verdict map for a job.
type Evaluator interface {
	Evaluate(ctx context.Context, job *domain.EvaluationJob) (domain.VerdictMap, error)
}

// Leaderboard credits accepted submissions and reads scoreboards.
type Leaderboard interface {
	Credit(ctx context.Context, submissionID, userID string, difficulty domain.Difficulty) (bool, error)
	TopK(ctx context.Context, scope domain.Scope, limit int) ([]domain.LeaderboardEntry, error)
}
