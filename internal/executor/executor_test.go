package executor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"termbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testExecutor(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	return New(cfg)
}

func reqFor(command string) domain.ExecRequest {
	return domain.ExecRequest{Command: command}
}

func reqIn(command, dir string) domain.ExecRequest {
	return domain.ExecRequest{Command: command, WorkingDir: dir}
}

func TestExecute_Echo_Success(t *testing.T) {
	e := testExecutor(Config{TimeoutSeconds: 5})
	res := e.Execute(context.Background(), reqFor("echo hello"))

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.Contains(res.Stdout, "hello") {
		t.Errorf("stdout should contain 'hello', got %q", res.Stdout)
	}
	if res.Stderr != "" {
		t.Errorf("stderr should be empty, got %q", res.Stderr)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("exit code should be 0, got %v", res.ExitCode)
	}
	if res.FailureReason != "" {
		t.Errorf("failure reason should be empty, got %q", res.FailureReason)
	}
}

func TestExecute_NonZeroExit_ReportsCode(t *testing.T) {
	e := testExecutor(Config{TimeoutSeconds: 5})
	res := e.Execute(context.Background(), reqFor("exit 3"))

	if res.Success {
		t.Fatal("expected success=false for exit 3")
	}
	if res.ExitCode == nil || *res.ExitCode != 3 {
		t.Errorf("exit code should be 3, got %v", res.ExitCode)
	}
	if res.FailureReason != "" {
		t.Errorf("non-zero exit is a completed execution, reason should be empty, got %q", res.FailureReason)
	}
}

func TestExecute_StreamsCapturedSeparately(t *testing.T) {
	e := testExecutor(Config{TimeoutSeconds: 5})
	res := e.Execute(context.Background(), reqFor("echo out; echo err 1>&2"))

	if !strings.Contains(res.Stdout, "out") {
		t.Errorf("stdout: got %q", res.Stdout)
	}
	if strings.Contains(res.Stdout, "err") {
		t.Errorf("stderr leaked into stdout: %q", res.Stdout)
	}
	if !strings.Contains(res.Stderr, "err") {
		t.Errorf("stderr: got %q", res.Stderr)
	}
}

func TestExecute_EmptyCommand_Failure(t *testing.T) {
	e := testExecutor(Config{TimeoutSeconds: 5})
	for _, cmd := range []string{"", "   "} {
		res := e.Execute(context.Background(), reqFor(cmd))
		if res.Success {
			t.Errorf("command %q: expected failure", cmd)
		}
		if res.ExitCode != nil {
			t.Errorf("command %q: exit code should be absent", cmd)
		}
		if res.FailureReason == "" {
			t.Errorf("command %q: failure reason should be set", cmd)
		}
	}
}

func TestExecute_Timeout_DiscardsPartialOutput(t *testing.T) {
	e := testExecutor(Config{TimeoutSeconds: 1})
	res := e.Execute(context.Background(), reqFor("echo partial; sleep 5"))

	if res.Success {
		t.Fatal("expected failure on timeout")
	}
	if res.ExitCode != nil {
		t.Errorf("exit code should be absent on timeout, got %v", *res.ExitCode)
	}
	if !strings.Contains(res.FailureReason, "timed out") {
		t.Errorf("failure reason should mention timeout, got %q", res.FailureReason)
	}
	if res.Stdout != "" {
		t.Errorf("partial output should be discarded, got %q", res.Stdout)
	}
}

func TestExecute_WorkingDirOverride(t *testing.T) {
	dir := t.TempDir()
	e := testExecutor(Config{TimeoutSeconds: 5})
	res := e.Execute(context.Background(), reqIn("pwd", dir))

	if !res.Success {
		t.Fatalf("pwd failed: %+v", res)
	}
	// macOS reports /private/var/... for /var/... temp dirs
	got := strings.TrimSpace(res.Stdout)
	if filepath.Base(got) != filepath.Base(dir) {
		t.Errorf("pwd should report the override dir, got %q want suffix of %q", got, dir)
	}
}

func TestExecute_BadWorkingDir_LaunchFailure(t *testing.T) {
	e := testExecutor(Config{TimeoutSeconds: 5})
	res := e.Execute(context.Background(), reqIn("echo hi", "/nonexistent/dir/for/test"))

	if res.Success {
		t.Fatal("expected launch failure for bad working dir")
	}
	if res.ExitCode != nil {
		t.Errorf("exit code should be absent on launch failure")
	}
	if res.FailureReason == "" {
		t.Error("failure reason should describe the launch error")
	}
}

func TestExecute_OutputTruncation(t *testing.T) {
	e := testExecutor(Config{TimeoutSeconds: 5, MaxOutputBytes: 64})
	res := e.Execute(context.Background(), reqFor("yes x | head -n 1000"))

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if !strings.Contains(res.Stdout, "(output truncated)") {
		t.Errorf("long output should be truncated, got %d bytes", len(res.Stdout))
	}
}
