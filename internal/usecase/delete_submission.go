package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

// DeleteSubmissionUsecase removes a submission record.
type DeleteSubmissionUsecase struct {
	repo   repository.SubmissionRepository
	logger *zap.Logger
}

// NewDeleteSubmissionUsecase creates a new DeleteSubmissionUsecase.
func NewDeleteSubmissionUsecase(repo repository.SubmissionRepository, logger *zap.Logger) *DeleteSubmissionUsecase {
	return &DeleteSubmissionUsecase{repo: repo, logger: logger}
}

// Execute deletes the submission. A job still queued for it will fail its
// result delivery and be dead-lettered; leaderboard credit is not revoked.
func (uc *DeleteSubmissionUsecase) Execute(ctx context.Context, id uuid.UUID) error {
	err := uc.repo.Delete(ctx, id)
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	uc.logger.Info("Submission deleted", zap.String("submission_id", id.String()))
	return nil
}
