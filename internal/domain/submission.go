package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus represents the lifecycle state of a submission.
type SubmissionStatus string

const (
	StatusPending    SubmissionStatus = "pending"
	StatusProcessing SubmissionStatus = "processing"
	StatusCompleted  SubmissionStatus = "completed"
	StatusFailed     SubmissionStatus = "failed"
)

// IsValid reports whether s is a known status.
func (s SubmissionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the status represents a final state.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TransitionSources lists the statuses a submission may move to "to" from.
// Transitions are monotonic: nothing moves back to pending, and terminal
// statuses never change again.
func TransitionSources(to SubmissionStatus) []SubmissionStatus {
	switch to {
	case StatusProcessing:
		return []SubmissionStatus{StatusPending, StatusProcessing}
	case StatusCompleted, StatusFailed:
		return []SubmissionStatus{StatusPending, StatusProcessing}
	}
	return nil
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to SubmissionStatus) bool {
	for _, s := range TransitionSources(to) {
		if s == from {
			return true
		}
	}
	return false
}

// Language represents a supported programming language.
type Language string

const (
	LangPython Language = "python"
	LangCpp    Language = "cpp"
)

// IsValid checks if the language is supported.
func (l Language) IsValid() bool {
	return l == LangPython || l == LangCpp
}

// Verdict is the judgement for a single test case.
type Verdict string

const (
	VerdictAccepted          Verdict = "AC"
	VerdictWrongAnswer       Verdict = "WA"
	VerdictTimeLimitExceeded Verdict = "TLE"
	VerdictRuntimeError      Verdict = "RE"
)

// IsValid reports whether v belongs to the canonical verdict set.
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictAccepted, VerdictWrongAnswer, VerdictTimeLimitExceeded, VerdictRuntimeError:
		return true
	}
	return false
}

// VerdictMap maps test case id to verdict.
type VerdictMap map[string]Verdict

// FullyAccepted is true when there is at least one verdict and every one is AC.
func (m VerdictMap) FullyAccepted() bool {
	if len(m) == 0 {
		return false
	}
	for _, v := range m {
		if v != VerdictAccepted {
			return false
		}
	}
	return true
}

// MatchesTestCases reports whether the key set of m equals ids exactly.
func (m VerdictMap) MatchesTestCases(ids []string) bool {
	if len(m) != len(ids) {
		return false
	}
	for _, id := range ids {
		if _, ok := m[id]; !ok {
			return false
		}
	}
	return true
}

// Submission is a user's program submitted against a problem.
type Submission struct {
	ID          uuid.UUID        `json:"id"`
	UserID      string           `json:"userId"`
	ProblemID   string           `json:"problemId"`
	Difficulty  Difficulty       `json:"difficulty"`
	Language    Language         `json:"language"`
	Code        string           `json:"code"`
	Status      SubmissionStatus `json:"status"`
	Verdicts    VerdictMap       `json:"submissionData"`
	TestCaseIDs []string         `json:"testCaseIds"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// SubmitRequest represents an incoming submission from the API.
type SubmitRequest struct {
	UserID    string   `json:"userId" binding:"required"`
	ProblemID string   `json:"problemId" binding:"required"`
	Code      string   `json:"code" binding:"required"`
	Language  Language `json:"language" binding:"required"`
}

// SubmitResponse is returned after a successful submission.
type SubmitResponse struct {
	SubmissionID uuid.UUID        `json:"submissionId"`
	JobID        string           `json:"jobId"`
	Status       SubmissionStatus `json:"status"`
}

// StatusUpdateRequest is the result delivery contract body.
type StatusUpdateRequest struct {
	Status   SubmissionStatus `json:"status" binding:"required"`
	Verdicts VerdictMap       `json:"submissionData"`
}

// LanguageInfo describes a supported language.
type LanguageInfo struct {
	Name          Language `json:"name"`
	Image         string   `json:"image"`
	TimeLimitMs   int64    `json:"timeLimitMs"`
	MemoryLimitMB int64    `json:"memoryLimitMb"`
}
