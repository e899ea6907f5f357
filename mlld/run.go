package mlld

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	osexec "os/exec"
	"sort"
	"strings"
	"time"

	mexec "github.com/mlld-lang/mlld-go/exec"
)

// Runner invokes the mlld CLI in its simple one-shot mode: one process per
// call, no multiplexing. It shares the option and result shapes with Client
// but never keeps a worker alive between calls.
type Runner struct {
	// Command invokes the mlld CLI. Defaults to "mlld".
	Command string

	// CommandArgs are extra args placed before the per-call arguments.
	CommandArgs []string

	// Timeout is the default deadline for operations. Zero means no timeout.
	Timeout time.Duration

	// WorkingDir is the working directory for script execution.
	WorkingDir string

	executor mexec.CommandExecutor
}

// NewRunner creates a Runner with default settings.
func NewRunner() *Runner {
	return NewRunnerWithExecutor(mexec.NewRealExecutor())
}

// NewRunnerWithExecutor creates a Runner backed by a custom executor.
func NewRunnerWithExecutor(executor mexec.CommandExecutor) *Runner {
	return &Runner{
		Command:  "mlld",
		Timeout:  DefaultTimeout,
		executor: executor,
	}
}

// RunScript executes an mlld script string via stdin and returns the output.
func (r *Runner) RunScript(ctx context.Context, script string, opts *ProcessOptions) (string, error) {
	if opts == nil {
		opts = &ProcessOptions{}
	}

	args := append(r.leadingArgs(), "/dev/stdin")

	stdout, err := r.run(ctx, opts.Timeout, []byte(script), args)
	if err != nil {
		return "", err
	}
	return string(stdout), nil
}

// RunFile runs an mlld file with a payload and optional state, returning the
// structured result.
func (r *Runner) RunFile(ctx context.Context, filepath string, payload any, opts *ExecuteOptions) (*ExecuteResult, error) {
	if opts == nil {
		opts = &ExecuteOptions{}
	}

	args := append(r.leadingArgs(), filepath, "--structured")

	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		args = append(args, "--inject", fmt.Sprintf("@payload=%s", encoded))
	}
	if opts.State != nil {
		encoded, err := json.Marshal(opts.State)
		if err != nil {
			return nil, fmt.Errorf("marshal state: %w", err)
		}
		args = append(args, "--inject", fmt.Sprintf("@state=%s", encoded))
	}
	if opts.DynamicModules != nil {
		names := make([]string, 0, len(opts.DynamicModules))
		for name := range opts.DynamicModules {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			encoded, err := json.Marshal(opts.DynamicModules[name])
			if err != nil {
				return nil, fmt.Errorf("marshal dynamic module %s: %w", name, err)
			}
			args = append(args, "--inject", fmt.Sprintf("%s=%s", name, encoded))
		}
	}

	stdout, err := r.run(ctx, opts.Timeout, nil, args)
	if err != nil {
		return nil, err
	}

	var result ExecuteResult
	if err := json.Unmarshal(stdout, &result); err != nil {
		// Non-JSON output stays non-fatal: treat it as plain text.
		result = ExecuteResult{Output: string(stdout)}
	}
	return &result, nil
}

// Analyze performs static analysis on an mlld module without executing it.
func (r *Runner) Analyze(ctx context.Context, filepath string) (*AnalyzeResult, error) {
	args := append(r.leadingArgs(), "analyze", filepath, "--format", "json")

	stdout, err := r.run(ctx, 0, nil, args)
	if err != nil {
		return nil, err
	}

	var result AnalyzeResult
	if err := json.Unmarshal(stdout, &result); err != nil {
		return nil, fmt.Errorf("parse analysis result: %w", err)
	}
	return &result, nil
}

func (r *Runner) leadingArgs() []string {
	return append([]string{}, r.CommandArgs...)
}

// run executes one CLI invocation. A non-zero exit becomes a WorkerError
// carrying the exit code and stderr text; any other spawn failure becomes a
// TransportError.
func (r *Runner) run(ctx context.Context, timeout time.Duration, stdin []byte, args []string) ([]byte, error) {
	if timeout == 0 {
		timeout = r.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	stdout, stderr, err := r.executor.Run(ctx, r.WorkingDir, stdin, r.Command, args...)
	if err != nil {
		message := strings.TrimSpace(string(stderr))
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			if message == "" {
				message = err.Error()
			}
			return nil, &WorkerError{
				Message: fmt.Sprintf("mlld exited with status %d: %s", exitErr.ExitCode(), message),
			}
		}
		if message != "" {
			return nil, &WorkerError{Message: message}
		}
		return nil, &TransportError{Reason: err.Error()}
	}

	return stdout, nil
}
