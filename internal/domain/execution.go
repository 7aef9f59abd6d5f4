package domain

import "context"

// ExecRequest describes a single command to run.
type ExecRequest struct {
	Command    string // required, non-empty
	WorkingDir string // optional; empty means the executor's own working directory
}

// ExecResult is the structured outcome of running a command.
// Success is true iff the process ran to completion with exit code 0.
// On timeout or launch failure ExitCode is nil and FailureReason is set.
type ExecResult struct {
	Success       bool
	Stdout        string
	Stderr        string
	ExitCode      *int
	FailureReason string
	TimedOut      bool // true only when FailureReason reports a timeout
}

// Executor runs a command through the platform shell under a bounded time
// budget. It never returns an error: every failure mode is representable
// in the result.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest) ExecResult
}
