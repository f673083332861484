package verdict

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/sandbox"
)

// Aggregator runs every test case of a job through the sandbox and folds
// the results into a verdict map.
type Aggregator struct {
	runner   sandbox.Runner
	registry *sandbox.Registry
	perJob   int
	global   *semaphore.Weighted
	logger   *zap.Logger
}

// NewAggregator creates an aggregator. perJob bounds concurrent runs for a
// single job; global bounds concurrent runs across all jobs in the process.
func NewAggregator(runner sandbox.Runner, registry *sandbox.Registry, perJob, global int, logger *zap.Logger) *Aggregator {
	if perJob < 1 {
		perJob = 1
	}
	if global < 1 {
		global = 1
	}
	return &Aggregator{
		runner:   runner,
		registry: registry,
		perJob:   perJob,
		global:   semaphore.NewWeighted(int64(global)),
		logger:   logger,
	}
}

// Evaluate runs all test cases concurrently. Any infrastructure error
// cancels the remaining runs; no partial verdict map is ever returned.
func (a *Aggregator) Evaluate(ctx context.Context, job *domain.EvaluationJob) (domain.VerdictMap, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	profile, err := a.registry.Lookup(job.Language)
	if err != nil {
		return nil, err
	}

	tests := job.Problem.TestCases
	results := make([]*sandbox.Result, len(tests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.perJob)

	for i, tc := range tests {
		g.Go(func() error {
			if err := a.global.Acquire(gctx, 1); err != nil {
				return err
			}
			defer a.global.Release(1)

			req := sandbox.RequestFor(profile, job.JobID.String()+"/"+tc.ID, job.Code, tc.Input)
			res, err := a.runner.Run(gctx, req)
			if err != nil {
				return fmt.Errorf("test case %s: %w", tc.ID, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.logger.Warn("evaluation aborted",
			zap.String("submission_id", job.SubmissionID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("verdict: evaluate: %w", err)
	}

	return Judge(tests, results)
}

// Judge maps each test case to a verdict. A timeout wins over a runtime
// failure, which wins over output comparison.
func Judge(tests []domain.TestCase, results []*sandbox.Result) (domain.VerdictMap, error) {
	if len(tests) != len(results) {
		return nil, fmt.Errorf("%w: %d test cases, %d results", domain.ErrIndeterminate, len(tests), len(results))
	}

	verdicts := make(domain.VerdictMap, len(tests))
	for i, tc := range tests {
		res := results[i]
		if res == nil {
			return nil, fmt.Errorf("%w: missing result for %s", domain.ErrIndeterminate, tc.ID)
		}
		verdicts[tc.ID] = judgeOne(tc, res)
	}
	return verdicts, nil
}

func judgeOne(tc domain.TestCase, res *sandbox.Result) domain.Verdict {
	switch res.Outcome {
	case sandbox.OutcomeTimeLimitExceeded:
		return domain.VerdictTimeLimitExceeded
	case sandbox.OutcomeFailed:
		return domain.VerdictRuntimeError
	}
	if sandbox.Sanitize(res.Output) == sandbox.Sanitize(tc.Output) {
		return domain.VerdictAccepted
	}
	return domain.VerdictWrongAnswer
}
