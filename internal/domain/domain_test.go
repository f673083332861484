package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SubmissionStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusFailed, true},
		{StatusProcessing, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusFailed, StatusPending, false},
		{StatusFailed, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestVerdictMap_FullyAccepted(t *testing.T) {
	if (VerdictMap{}).FullyAccepted() {
		t.Error("empty map must not count as full acceptance")
	}
	if !(VerdictMap{"tc1": VerdictAccepted, "tc2": VerdictAccepted}).FullyAccepted() {
		t.Error("all AC should be full acceptance")
	}
	if (VerdictMap{"tc1": VerdictAccepted, "tc2": VerdictRuntimeError}).FullyAccepted() {
		t.Error("RE must break full acceptance")
	}
}

func TestVerdictMap_MatchesTestCases(t *testing.T) {
	m := VerdictMap{"tc1": VerdictAccepted, "tc2": VerdictWrongAnswer}

	if !m.MatchesTestCases([]string{"tc2", "tc1"}) {
		t.Error("expected key set to match regardless of order")
	}
	if m.MatchesTestCases([]string{"tc1"}) {
		t.Error("expected mismatch on missing id")
	}
	if m.MatchesTestCases([]string{"tc1", "tc3"}) {
		t.Error("expected mismatch on foreign id")
	}
}

func TestDifficultyScope(t *testing.T) {
	if DifficultyHard.Scope() != ScopeHard {
		t.Errorf("expected hard scope, got %s", DifficultyHard.Scope())
	}
	d, err := ParseDifficulty(" MEDIUM ")
	if err != nil || d != DifficultyMedium {
		t.Errorf("ParseDifficulty: got %s, %v", d, err)
	}
	if _, err := ParseDifficulty("legendary"); !errors.Is(err, ErrInvalidDifficulty) {
		t.Errorf("expected ErrInvalidDifficulty, got %v", err)
	}
}

func TestEvaluationJob_Validate(t *testing.T) {
	valid := EvaluationJob{
		SubmissionID: uuid.New(),
		Problem: Problem{TestCases: []TestCase{
			{ID: "tc1", Input: "1", Output: "1"},
			{ID: "tc2", Input: "2", Output: "2"},
		}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	noSubmission := valid
	noSubmission.SubmissionID = uuid.Nil
	if !errors.Is(noSubmission.Validate(), ErrInvalidJob) {
		t.Error("expected ErrInvalidJob for nil submission id")
	}

	dup := valid
	dup.Problem.TestCases = []TestCase{{ID: "tc1"}, {ID: "tc1"}}
	if !errors.Is(dup.Validate(), ErrInvalidJob) {
		t.Error("expected ErrInvalidJob for duplicate test case ids")
	}

	empty := valid
	empty.Problem.TestCases = nil
	if !errors.Is(empty.Validate(), ErrInvalidJob) {
		t.Error("expected ErrInvalidJob for empty test cases")
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(fmt.Errorf("aggregate: %w", ErrIndeterminate)) {
		t.Error("wrapped ErrIndeterminate should be permanent")
	}
	if IsPermanent(errors.New("docker daemon unreachable")) {
		t.Error("infrastructure errors should be retryable")
	}
}
