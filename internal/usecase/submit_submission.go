package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/metrics"
	"github.com/Harsh-BH/sentinel-judge/internal/publisher"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

const maxSourceCodeSize = 1 << 20 // 1 MB

// LanguageSupport is the language allow-list.
type LanguageSupport interface {
	Supports(lang domain.Language) bool
}

// SubmitSubmissionUsecase validates a submission, records it and enqueues
// its evaluation job.
type SubmitSubmissionUsecase struct {
	repo      repository.SubmissionRepository
	problems  repository.ProblemFetcher
	publisher publisher.Publisher
	languages LanguageSupport
	logger    *zap.Logger
}

// NewSubmitSubmissionUsecase creates a new SubmitSubmissionUsecase.
func NewSubmitSubmissionUsecase(
	repo repository.SubmissionRepository,
	problems repository.ProblemFetcher,
	pub publisher.Publisher,
	languages LanguageSupport,
	logger *zap.Logger,
) *SubmitSubmissionUsecase {
	return &SubmitSubmissionUsecase{
		repo:      repo,
		problems:  problems,
		publisher: pub,
		languages: languages,
		logger:    logger,
	}
}

// Execute validates the request, snapshots the problem's test cases into a
// job, persists the submission as pending and publishes the job.
func (uc *SubmitSubmissionUsecase) Execute(ctx context.Context, req *domain.SubmitRequest) (*domain.SubmitResponse, error) {
	resp, err := uc.execute(ctx, req)
	result := "accepted"
	if err != nil {
		result = "rejected"
		if errors.Is(err, domain.ErrPublishFailed) {
			result = "publish_failed"
		}
	}
	metrics.SubmissionsTotal.WithLabelValues(string(req.Language), result).Inc()
	return resp, err
}

func (uc *SubmitSubmissionUsecase) execute(ctx context.Context, req *domain.SubmitRequest) (*domain.SubmitResponse, error) {
	if err := uc.validate(req); err != nil {
		return nil, err
	}

	problem, err := uc.problems.GetProblem(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}
	if len(problem.TestCases) == 0 {
		return nil, domain.ErrNoTestCases
	}
	assignTestCaseIDs(problem)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}
	jobID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}

	sub := &domain.Submission{
		ID:          id,
		UserID:      req.UserID,
		ProblemID:   problem.ID,
		Difficulty:  problem.Difficulty,
		Language:    req.Language,
		Code:        req.Code,
		Status:      domain.StatusPending,
		Verdicts:    domain.VerdictMap{},
		TestCaseIDs: problem.TestCaseIDs(),
	}
	if err := uc.repo.Create(ctx, sub); err != nil {
		uc.logger.Error("Failed to create submission", zap.Error(err), zap.String("submission_id", id.String()))
		return nil, fmt.Errorf("create submission: %w", err)
	}

	job := &domain.EvaluationJob{
		JobID:        jobID,
		SubmissionID: id,
		UserID:       req.UserID,
		Problem:      *problem,
		Code:         req.Code,
		Language:     req.Language,
		EnqueuedAt:   time.Now().UTC(),
	}
	if err := uc.publisher.Publish(ctx, job); err != nil {
		uc.logger.Error("Failed to publish job to queue",
			zap.Error(err),
			zap.String("submission_id", id.String()),
			zap.String("job_id", jobID.String()),
		)
		// The job will never run, so the submission must not stay pending.
		if uerr := uc.repo.UpdateStatus(ctx, id, domain.StatusFailed, domain.VerdictMap{}); uerr != nil {
			uc.logger.Error("Failed to mark unpublished submission failed", zap.Error(uerr), zap.String("submission_id", id.String()))
		}
		return nil, domain.ErrPublishFailed
	}

	uc.logger.Info("Submission accepted",
		zap.String("submission_id", id.String()),
		zap.String("job_id", jobID.String()),
		zap.String("problem_id", problem.ID),
		zap.String("language", string(req.Language)),
		zap.Int("test_cases", len(problem.TestCases)),
	)

	return &domain.SubmitResponse{
		SubmissionID: id,
		JobID:        jobID.String(),
		Status:       domain.StatusPending,
	}, nil
}

func (uc *SubmitSubmissionUsecase) validate(req *domain.SubmitRequest) error {
	switch {
	case strings.TrimSpace(req.UserID) == "":
		return domain.ErrMissingUserID
	case strings.TrimSpace(req.ProblemID) == "":
		return domain.ErrMissingProblemID
	case !uc.languages.Supports(req.Language):
		return domain.ErrInvalidLanguage
	case strings.TrimSpace(req.Code) == "":
		return domain.ErrEmptySourceCode
	case len(req.Code) > maxSourceCodeSize:
		return domain.ErrPayloadTooLarge
	}
	return nil
}

// assignTestCaseIDs keeps the problem's ids when every test case has a
// unique one, and otherwise numbers them tc1..tcN in order.
func assignTestCaseIDs(p *domain.Problem) {
	if hasUniqueIDs(p.TestCases) {
		return
	}
	for i := range p.TestCases {
		p.TestCases[i].ID = "tc" + strconv.Itoa(i+1)
	}
}

func hasUniqueIDs(tests []domain.TestCase) bool {
	seen := make(map[string]struct{}, len(tests))
	for _, tc := range tests {
		if tc.ID == "" {
			return false
		}
		if _, dup := seen[tc.ID]; dup {
			return false
		}
		seen[tc.ID] = struct{}{}
	}
	return true
}
