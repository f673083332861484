package sandbox

import (
	"context"
	"time"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// Outcome is the coarse result of one sandboxed run.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeFailed            Outcome = "failed"
	OutcomeTimeLimitExceeded Outcome = "time_limit_exceeded"
)

// Request describes a single run of untrusted code against one input.
type Request struct {
	SessionID        string
	Language         domain.Language
	SourceCode       string
	Stdin            string
	TimeLimit        time.Duration
	MemoryLimitBytes int64
}

// Result is the observable outcome of a run. Output is the sanitized,
// combined stdout and stderr of the program.
type Result struct {
	Outcome  Outcome
	Output   string
	ExitCode int
	Duration time.Duration
}

// Runner executes code in an isolated environment. A non-nil error means
// the environment itself failed; program failures are reported through
// Result.Outcome.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// RequestFor builds a Request using the profile's configured limits.
func RequestFor(p Profile, sessionID, code, stdin string) Request {
	return Request{
		SessionID:        sessionID,
		Language:         p.Language,
		SourceCode:       code,
		Stdin:            stdin,
		TimeLimit:        p.TimeLimit,
		MemoryLimitBytes: p.MemoryLimitBytes,
	}
}
