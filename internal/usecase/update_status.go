package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

// UpdateStatusUsecase applies result deliveries to submission records.
type UpdateStatusUsecase struct {
	repo   repository.SubmissionRepository
	logger *zap.Logger
}

// NewUpdateStatusUsecase creates a new UpdateStatusUsecase.
func NewUpdateStatusUsecase(repo repository.SubmissionRepository, logger *zap.Logger) *UpdateStatusUsecase {
	return &UpdateStatusUsecase{
		repo:   repo,
		logger: logger,
	}
}

// Execute moves submission id to req.Status. Transitions only go forward,
// terminal records never change, and a completed update must carry exactly
// one valid verdict per recorded test case.
func (uc *UpdateStatusUsecase) Execute(ctx context.Context, id uuid.UUID, req *domain.StatusUpdateRequest) (*domain.Submission, error) {
	if !req.Status.IsValid() || req.Status == domain.StatusPending {
		return nil, domain.ErrInvalidStatus
	}

	sub, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(sub.Status, req.Status) {
		uc.logger.Info("Rejected status transition",
			zap.String("submission_id", id.String()),
			zap.String("from", string(sub.Status)),
			zap.String("to", string(req.Status)),
		)
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, sub.Status, req.Status)
	}

	verdicts := req.Verdicts
	for tc, v := range verdicts {
		if !v.IsValid() {
			return nil, fmt.Errorf("%w: %s has verdict %q", domain.ErrVerdictMismatch, tc, v)
		}
	}
	switch req.Status {
	case domain.StatusCompleted:
		if !verdicts.MatchesTestCases(sub.TestCaseIDs) {
			return nil, fmt.Errorf("%w: got %d verdicts for %d test cases",
				domain.ErrVerdictMismatch, len(verdicts), len(sub.TestCaseIDs))
		}
	case domain.StatusFailed:
		if verdicts == nil {
			verdicts = domain.VerdictMap{}
		}
	case domain.StatusProcessing:
		// Verdicts are only recorded on terminal updates.
		verdicts = nil
	}

	if err := uc.repo.UpdateStatus(ctx, id, req.Status, verdicts); err != nil {
		return nil, err
	}

	sub.Status = req.Status
	if verdicts != nil {
		sub.Verdicts = verdicts
	}

	uc.logger.Info("Submission status updated",
		zap.String("submission_id", id.String()),
		zap.String("status", string(req.Status)),
		zap.Int("verdicts", len(sub.Verdicts)),
	)
	return sub, nil
}
