package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"termbridge/internal/domain"
)

const (
	defaultTimeoutSeconds = 30
	defaultMaxOutputBytes = 65536
)

// Executor runs commands through the platform shell with a hard timeout.
// It deliberately performs no safety validation: no allow-list, no shell
// metacharacter filtering. It is a faithful, bounded-time relay, not a
// sandbox.
type Executor struct {
	workingDir     string
	timeout        time.Duration
	maxOutputBytes int
	logger         *slog.Logger
}

type Config struct {
	WorkingDir     string
	TimeoutSeconds int
	MaxOutputBytes int
	Logger         *slog.Logger
}

func New(cfg Config) *Executor {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		workingDir:     cfg.WorkingDir,
		timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxOutputBytes: cfg.MaxOutputBytes,
		logger:         cfg.Logger,
	}
}

// Execute runs the command and always returns a structured result; no
// failure inside the subprocess is allowed to propagate as an error.
// exec.CommandContext kills and reaps the process when the deadline
// elapses, so no process handle leaks past this call.
func (e *Executor) Execute(ctx context.Context, req domain.ExecRequest) domain.ExecResult {
	command := strings.TrimSpace(req.Command)
	if command == "" {
		return domain.ExecResult{Success: false, FailureReason: "missing required field: command"}
	}

	dir := req.WorkingDir
	if dir == "" {
		dir = e.workingDir
	}
	if dir == "" {
		dir = "."
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Always use sh -c for reliable handling of pipes, redirects, quotes, etc.
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = absDir
	// Don't let orphaned children holding the output pipes stall the reap
	// after the shell itself is killed.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runCtx.Err() != nil {
		// Timeout or caller cancellation. Partial output is discarded.
		reason := fmt.Sprintf("command timed out after %s", e.timeout)
		timedOut := true
		if ctx.Err() != nil {
			reason = "command cancelled"
			timedOut = false
		}
		e.logger.Warn("command did not complete", "command", command, "elapsed", elapsed, "reason", reason)
		return domain.ExecResult{Success: false, FailureReason: reason, TimedOut: timedOut}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code := exitErr.ExitCode()
			e.logger.Info("command exited non-zero", "command", command, "code", code, "elapsed", elapsed)
			return domain.ExecResult{
				Success:  false,
				Stdout:   e.truncate(stdout.String()),
				Stderr:   e.truncate(stderr.String()),
				ExitCode: &code,
			}
		}
		// Launch failure: missing shell, permission error, bad working dir.
		e.logger.Warn("command failed to launch", "command", command, "err", runErr)
		return domain.ExecResult{Success: false, FailureReason: runErr.Error()}
	}

	code := 0
	e.logger.Debug("command completed", "command", command, "elapsed", elapsed)
	return domain.ExecResult{
		Success:  true,
		Stdout:   e.truncate(stdout.String()),
		Stderr:   e.truncate(stderr.String()),
		ExitCode: &code,
	}
}

func (e *Executor) truncate(s string) string {
	if e.maxOutputBytes > 0 && len(s) > e.maxOutputBytes {
		return s[:e.maxOutputBytes] + "\n... (output truncated)"
	}
	return s
}
