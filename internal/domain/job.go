package domain

import (
	"time"

	"github.com/google/uuid"
)

// TestCase is one hidden input/expected-output pair.
type TestCase struct {
	ID     string `json:"id"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Problem is the part of a problem the judge needs.
type Problem struct {
	ID         string     `json:"id"`
	Title      string     `json:"title,omitempty"`
	Difficulty Difficulty `json:"difficulty"`
	TestCases  []TestCase `json:"testcases"`
}

// TestCaseIDs returns the ids of the problem's test cases in order.
func (p *Problem) TestCaseIDs() []string {
	ids := make([]string, len(p.TestCases))
	for i, tc := range p.TestCases {
		ids[i] = tc.ID
	}
	return ids
}

// EvaluationJob is the snapshot enqueued for a submission. It carries its own
// copy of the test cases so later problem edits do not reach jobs in flight.
type EvaluationJob struct {
	JobID        uuid.UUID `json:"jobId"`
	SubmissionID uuid.UUID `json:"submissionId"`
	UserID       string    `json:"userId"`
	Problem      Problem   `json:"problem"`
	Code         string    `json:"code"`
	Language     Language  `json:"language"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
}

// Validate checks the fields the worker cannot do without.
func (j *EvaluationJob) Validate() error {
	if j.SubmissionID == uuid.Nil {
		return ErrInvalidJob
	}
	if len(j.Problem.TestCases) == 0 {
		return ErrInvalidJob
	}
	seen := make(map[string]struct{}, len(j.Problem.TestCases))
	for _, tc := range j.Problem.TestCases {
		if tc.ID == "" {
			return ErrInvalidJob
		}
		if _, dup := seen[tc.ID]; dup {
			return ErrInvalidJob
		}
		seen[tc.ID] = struct{}{}
	}
	return nil
}

// JobMessage wraps a job received from the queue with its ack callbacks.
type JobMessage struct {
	Job *EvaluationJob
	// Attempt is 1 for the first delivery and grows with every redelivery.
	Attempt int
	Ack     func() error
	Nack    func(requeue bool) error
}
