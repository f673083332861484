package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ListSubmissionsUsecase lists the submissions made against one problem.
type ListSubmissionsUsecase struct {
	repo repository.SubmissionRepository
}

// NewListSubmissionsUsecase creates a new ListSubmissionsUsecase.
func NewListSubmissionsUsecase(repo repository.SubmissionRepository) *ListSubmissionsUsecase {
	return &ListSubmissionsUsecase{repo: repo}
}

// Execute returns the newest submissions for problemID. Non-positive limits
// fall back to the default and large ones are capped.
func (uc *ListSubmissionsUsecase) Execute(ctx context.Context, problemID string, limit int) ([]*domain.Submission, error) {
	problemID = strings.TrimSpace(problemID)
	if problemID == "" {
		return nil, domain.ErrMissingProblemID
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	subs, err := uc.repo.ListByProblem(ctx, problemID, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}
