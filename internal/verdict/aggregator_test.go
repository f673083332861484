package verdict

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/sandbox"
)

// scriptedRunner returns results keyed by the stdin of each request.
type scriptedRunner struct {
	mu       sync.Mutex
	results  map[string]*sandbox.Result
	errs     map[string]error
	delay    time.Duration
	calls    int
	inFlight atomic.Int32
	peak     atomic.Int32
	seen     []sandbox.Request
}

func (r *scriptedRunner) Run(ctx context.Context, req sandbox.Request) (*sandbox.Result, error) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}

	r.mu.Lock()
	r.calls++
	r.seen = append(r.seen, req)
	res, err := r.results[req.Stdin], r.errs[req.Stdin]
	r.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &sandbox.Result{Outcome: sandbox.OutcomeSuccess}, nil
	}
	return res, nil
}

func testRegistry() *sandbox.Registry {
	return sandbox.NewRegistry(
		sandbox.PythonProfile("python:3.8-slim", 4*time.Second, 256<<20),
		sandbox.CppProfile("gcc:latest", 2*time.Second, 128<<20),
	)
}

func newJob(lang domain.Language, tests ...domain.TestCase) *domain.EvaluationJob {
	return &domain.EvaluationJob{
		JobID:        uuid.New(),
		SubmissionID: uuid.New(),
		UserID:       "u1",
		Problem:      domain.Problem{ID: "p1", Difficulty: domain.DifficultyEasy, TestCases: tests},
		Code:         "print(input())",
		Language:     lang,
	}
}

func TestEvaluate_MixedVerdicts(t *testing.T) {
	runner := &scriptedRunner{results: map[string]*sandbox.Result{
		"1": {Outcome: sandbox.OutcomeSuccess, Output: "1\n"},
		"2": {Outcome: sandbox.OutcomeSuccess, Output: "3"},
		"3": {Outcome: sandbox.OutcomeTimeLimitExceeded},
		"4": {Outcome: sandbox.OutcomeFailed, Output: "Traceback", ExitCode: 1},
	}}
	agg := NewAggregator(runner, testRegistry(), 4, 8, zap.NewNop())

	job := newJob(domain.LangPython,
		domain.TestCase{ID: "tc1", Input: "1", Output: "1"},
		domain.TestCase{ID: "tc2", Input: "2", Output: "2"},
		domain.TestCase{ID: "tc3", Input: "3", Output: "3"},
		domain.TestCase{ID: "tc4", Input: "4", Output: "4"},
	)

	verdicts, err := agg.Evaluate(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := domain.VerdictMap{
		"tc1": domain.VerdictAccepted,
		"tc2": domain.VerdictWrongAnswer,
		"tc3": domain.VerdictTimeLimitExceeded,
		"tc4": domain.VerdictRuntimeError,
	}
	for id, v := range want {
		if verdicts[id] != v {
			t.Errorf("%s: expected %s, got %s", id, v, verdicts[id])
		}
	}
	if len(verdicts) != len(want) {
		t.Errorf("expected %d verdicts, got %d", len(want), len(verdicts))
	}
}

func TestEvaluate_UsesProfileLimits(t *testing.T) {
	runner := &scriptedRunner{}
	agg := NewAggregator(runner, testRegistry(), 1, 1, zap.NewNop())

	job := newJob(domain.LangCpp, domain.TestCase{ID: "tc1", Input: "x", Output: ""})
	if _, err := agg.Evaluate(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := runner.seen[0]
	if req.TimeLimit != 2*time.Second || req.MemoryLimitBytes != 128<<20 {
		t.Errorf("expected cpp limits, got %v/%d", req.TimeLimit, req.MemoryLimitBytes)
	}
	if !strings.HasSuffix(req.SessionID, "/tc1") {
		t.Errorf("expected session id to name the test case, got %s", req.SessionID)
	}
}

func TestEvaluate_RunnerErrorAbortsJob(t *testing.T) {
	runner := &scriptedRunner{
		errs:  map[string]error{"2": errors.New("docker daemon unavailable")},
		delay: 20 * time.Millisecond,
	}
	agg := NewAggregator(runner, testRegistry(), 4, 4, zap.NewNop())

	job := newJob(domain.LangPython,
		domain.TestCase{ID: "tc1", Input: "1", Output: "1"},
		domain.TestCase{ID: "tc2", Input: "2", Output: "2"},
	)

	verdicts, err := agg.Evaluate(context.Background(), job)
	if err == nil {
		t.Fatal("expected error when a run fails")
	}
	if verdicts != nil {
		t.Errorf("expected no partial verdicts, got %v", verdicts)
	}
	if domain.IsPermanent(err) {
		t.Errorf("infrastructure failure should be retryable, got %v", err)
	}
}

func TestEvaluate_UnsupportedLanguageIsPermanent(t *testing.T) {
	agg := NewAggregator(&scriptedRunner{}, testRegistry(), 1, 1, zap.NewNop())

	job := newJob("ruby", domain.TestCase{ID: "tc1", Input: "1", Output: "1"})
	_, err := agg.Evaluate(context.Background(), job)
	if !errors.Is(err, domain.ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestEvaluate_InvalidJob(t *testing.T) {
	agg := NewAggregator(&scriptedRunner{}, testRegistry(), 1, 1, zap.NewNop())

	_, err := agg.Evaluate(context.Background(), newJob(domain.LangPython))
	if !errors.Is(err, domain.ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
}

func TestEvaluate_FanOutIsBounded(t *testing.T) {
	runner := &scriptedRunner{delay: 10 * time.Millisecond}
	agg := NewAggregator(runner, testRegistry(), 2, 8, zap.NewNop())

	var tests []domain.TestCase
	for i := 0; i < 10; i++ {
		id := "tc" + string(rune('a'+i))
		tests = append(tests, domain.TestCase{ID: id, Input: id, Output: ""})
	}
	if _, err := agg.Evaluate(context.Background(), newJob(domain.LangPython, tests...)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.calls != 10 {
		t.Errorf("expected 10 runs, got %d", runner.calls)
	}
	if peak := runner.peak.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent runs, saw %d", peak)
	}
}

func TestEvaluate_GlobalBoundAcrossJobs(t *testing.T) {
	runner := &scriptedRunner{delay: 10 * time.Millisecond}
	agg := NewAggregator(runner, testRegistry(), 4, 3, zap.NewNop())

	var wg sync.WaitGroup
	for j := 0; j < 3; j++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := newJob(domain.LangPython,
				domain.TestCase{ID: "tc1", Input: "a"},
				domain.TestCase{ID: "tc2", Input: "b"},
				domain.TestCase{ID: "tc3", Input: "c"},
				domain.TestCase{ID: "tc4", Input: "d"},
			)
			if _, err := agg.Evaluate(context.Background(), job); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := runner.peak.Load(); peak > 3 {
		t.Errorf("expected at most 3 concurrent runs process-wide, saw %d", peak)
	}
}

func TestJudge_Priority(t *testing.T) {
	tc := domain.TestCase{ID: "tc1", Output: "ok"}

	tests := []struct {
		name string
		res  *sandbox.Result
		want domain.Verdict
	}{
		{"timeout beats matching output", &sandbox.Result{Outcome: sandbox.OutcomeTimeLimitExceeded, Output: "ok"}, domain.VerdictTimeLimitExceeded},
		{"failure beats matching output", &sandbox.Result{Outcome: sandbox.OutcomeFailed, Output: "ok"}, domain.VerdictRuntimeError},
		{"sanitized match", &sandbox.Result{Outcome: sandbox.OutcomeSuccess, Output: "ok\r\n\x00"}, domain.VerdictAccepted},
		{"mismatch", &sandbox.Result{Outcome: sandbox.OutcomeSuccess, Output: "OK"}, domain.VerdictWrongAnswer},
		{"empty output", &sandbox.Result{Outcome: sandbox.OutcomeSuccess}, domain.VerdictWrongAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Judge([]domain.TestCase{tc}, []*sandbox.Result{tt.res})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got["tc1"] != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got["tc1"])
			}
		})
	}
}

func TestJudge_TabsAreSignificant(t *testing.T) {
	tests := []domain.TestCase{{ID: "tc1", Output: "1\t2"}, {ID: "tc2", Output: "1\t2"}}
	results := []*sandbox.Result{
		{Outcome: sandbox.OutcomeSuccess, Output: "12"},
		{Outcome: sandbox.OutcomeSuccess, Output: "1\t2\r\n"},
	}

	got, err := Judge(tests, results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["tc1"] != domain.VerdictWrongAnswer {
		t.Errorf("expected joined tokens to be WA, got %s", got["tc1"])
	}
	if got["tc2"] != domain.VerdictAccepted {
		t.Errorf("expected tab-separated output to be AC, got %s", got["tc2"])
	}
}

func TestJudge_CountMismatchIsIndeterminate(t *testing.T) {
	tests := []domain.TestCase{{ID: "tc1"}, {ID: "tc2"}}
	_, err := Judge(tests, []*sandbox.Result{{Outcome: sandbox.OutcomeSuccess}})
	if !errors.Is(err, domain.ErrIndeterminate) {
		t.Fatalf("expected ErrIndeterminate, got %v", err)
	}
}

func TestJudge_Deterministic(t *testing.T) {
	tests := []domain.TestCase{{ID: "tc1", Output: "1"}, {ID: "tc2", Output: "2"}}
	results := []*sandbox.Result{
		{Outcome: sandbox.OutcomeSuccess, Output: "1"},
		{Outcome: sandbox.OutcomeSuccess, Output: "x"},
	}

	first, _ := Judge(tests, results)
	for i := 0; i < 20; i++ {
		again, _ := Judge(tests, results)
		for id, v := range first {
			if again[id] != v {
				t.Fatalf("verdict for %s changed between runs", id)
			}
		}
	}
}
