package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const compileTimeLimit = 10 * time.Second

// NsjailRunner runs code inside an nsjail sandbox on the local host.
type NsjailRunner struct {
	nsjailPath string
	configDir  string
	registry   *Registry
	logger     *zap.Logger
}

var _ Runner = (*NsjailRunner)(nil)

// NewNsjailRunner creates a new nsjail-backed runner.
func NewNsjailRunner(nsjailPath, configDir string, registry *Registry, logger *zap.Logger) *NsjailRunner {
	return &NsjailRunner{
		nsjailPath: nsjailPath,
		configDir:  configDir,
		registry:   registry,
		logger:     logger,
	}
}

// Run writes the source and input into an ephemeral work dir, compiles if
// the language needs it, and runs the program under the time limit.
func (e *NsjailRunner) Run(ctx context.Context, req Request) (*Result, error) {
	profile, err := e.registry.Lookup(req.Language)
	if err != nil {
		return nil, err
	}
	timeLimit := req.TimeLimit
	if timeLimit <= 0 {
		timeLimit = profile.TimeLimit
	}
	memory := req.MemoryLimitBytes
	if memory <= 0 {
		memory = profile.MemoryLimitBytes
	}

	workDir, err := os.MkdirTemp("", "sentinel-judge-*")
	if err != nil {
		return nil, fmt.Errorf("sandbox: create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, profile.SourceFile), []byte(req.SourceCode), 0o644); err != nil {
		return nil, fmt.Errorf("sandbox: write source: %w", err)
	}

	log := e.logger.With(zap.String("session_id", req.SessionID))
	configPath := filepath.Join(e.configDir, profile.NsjailConfig)

	if len(profile.CompileArgs) > 0 {
		compiled, err := e.runJailed(ctx, configPath, workDir, "", compileTimeLimit, memory, profile.CompileArgs, log)
		if err != nil {
			return nil, fmt.Errorf("sandbox: compile: %w", err)
		}
		if compiled.Outcome != OutcomeSuccess {
			// Compilation errors surface as a failed run.
			compiled.Outcome = OutcomeFailed
			return compiled, nil
		}
	}

	return e.runJailed(ctx, configPath, workDir, req.Stdin, timeLimit, memory, profile.RunArgs, log)
}

func (e *NsjailRunner) runJailed(
	ctx context.Context,
	configPath, workDir, stdin string,
	timeLimit time.Duration,
	memory int64,
	execArgs []string,
	log *zap.Logger,
) (*Result, error) {
	args := []string{
		"--config", configPath,
		"--bindmount", workDir + ":/tmp/work",
		"--time_limit", fmt.Sprintf("%d", int(timeLimit.Seconds())+1),
		"--cgroup_mem_max", fmt.Sprintf("%d", memory),
		"--",
	}
	args = append(args, execArgs...)

	cmd := exec.Command(e.nsjailPath, args...)
	// Own process group so the whole tree can be killed at once.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = strings.NewReader(stdin)

	output := newLimitedBuffer(maxOutputBytes)
	cmd.Stdout = output
	cmd.Stderr = output

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start nsjail: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeLimit)
	defer timer.Stop()

	result := &Result{}
	select {
	case err := <-done:
		result.Duration = time.Since(start)
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			result.Outcome = OutcomeSuccess
		case errors.As(err, &exitErr):
			result.Outcome = OutcomeFailed
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("wait nsjail: %w", err)
		}
	case <-timer.C:
		killGroup(cmd, log)
		<-done
		result.Duration = time.Since(start)
		result.Outcome = OutcomeTimeLimitExceeded
		result.ExitCode = -1
	case <-ctx.Done():
		killGroup(cmd, log)
		<-done
		return nil, ctx.Err()
	}

	programOutput, nsjailLog := separateNsjailLogs(output.String())
	result.Output = Sanitize(programOutput)

	log.Debug("nsjail execution completed",
		zap.String("outcome", string(result.Outcome)),
		zap.Duration("elapsed", result.Duration),
		zap.Int("exit_code", result.ExitCode),
		zap.String("nsjail_log", nsjailLog),
	)
	return result, nil
}

func killGroup(cmd *exec.Cmd, log *zap.Logger) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		log.Warn("failed to kill process group", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
	}
}

// separateNsjailLogs splits nsjail log lines from the program's output.
// nsjail prefixes its log lines with bracketed tags like [I], [W], [E].
func separateNsjailLogs(raw string) (programOutput, nsjailLogs string) {
	if raw == "" {
		return "", ""
	}

	var progLines, logLines []string
	for _, line := range strings.Split(raw, "\n") {
		if isNsjailLogLine(strings.TrimSpace(line)) {
			logLines = append(logLines, line)
		} else {
			progLines = append(progLines, line)
		}
	}
	return strings.Join(progLines, "\n"), strings.Join(logLines, "\n")
}

func isNsjailLogLine(line string) bool {
	for _, prefix := range []string{"[I]", "[W]", "[E]", "[F]", "[D]"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
