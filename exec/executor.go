// Package exec provides an abstraction over command execution for testability.
// It allows production code to use real exec.Command while tests
// can inject mock executors that return pre-recorded responses.
package exec

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
)

// CommandExecutor abstracts command execution for testability.
// Production code uses RealExecutor, while tests use MockExecutor.
type CommandExecutor interface {
	// Run executes a command with the given stdin content and returns
	// stdout, stderr, and any error. stdin may be nil.
	Run(ctx context.Context, dir string, stdin []byte, name string, args ...string) (stdout, stderr []byte, err error)
}

// RealExecutor executes commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Run executes a command and returns stdout, stderr, and any error.
func (e *RealExecutor) Run(ctx context.Context, dir string, stdin []byte, name string, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// CommandMatcher is a function that determines if a command matches.
type CommandMatcher func(dir, name string, args []string) bool

// MockRule defines a matching rule and its response.
type MockRule struct {
	Match    CommandMatcher
	Response MockResponse
}

// MockExecutor returns pre-recorded responses for commands.
// Commands are matched in order of rule registration.
type MockExecutor struct {
	mu       sync.RWMutex
	rules    []MockRule
	calls    []MockCall
	fallback CommandExecutor
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Dir   string
	Stdin []byte
	Name  string
	Args  []string
}

// NewMockExecutor creates a new MockExecutor.
// If fallback is provided, unmatched commands will be delegated to it.
func NewMockExecutor(fallback CommandExecutor) *MockExecutor {
	return &MockExecutor{
		fallback: fallback,
	}
}

// AddRule adds a matching rule with its response.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, MockRule{Match: match, Response: response})
}

// AddExactMatch adds a rule that matches a specific command exactly.
func (e *MockExecutor) AddExactMatch(name string, args []string, response MockResponse) {
	e.AddRule(func(dir, n string, a []string) bool {
		if n != name {
			return false
		}
		if len(a) != len(args) {
			return false
		}
		for i, arg := range args {
			if a[i] != arg {
				return false
			}
		}
		return true
	}, response)
}

// AddPrefixMatch adds a rule that matches commands starting with specific args.
func (e *MockExecutor) AddPrefixMatch(name string, prefixArgs []string, response MockResponse) {
	e.AddRule(func(dir, n string, a []string) bool {
		if n != name {
			return false
		}
		if len(a) < len(prefixArgs) {
			return false
		}
		for i, arg := range prefixArgs {
			if a[i] != arg {
				return false
			}
		}
		return true
	}, response)
}

// GetCalls returns all recorded command invocations.
func (e *MockExecutor) GetCalls() []MockCall {
	e.mu.RLock()
	defer e.mu.RUnlock()
	calls := make([]MockCall, len(e.calls))
	copy(calls, e.calls)
	return calls
}

// ClearCalls clears the recorded invocations.
func (e *MockExecutor) ClearCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// Run returns the first matching rule's response, or delegates to the fallback.
func (e *MockExecutor) Run(ctx context.Context, dir string, stdin []byte, name string, args ...string) (stdout, stderr []byte, err error) {
	e.mu.Lock()
	e.calls = append(e.calls, MockCall{Dir: dir, Stdin: stdin, Name: name, Args: args})
	rules := make([]MockRule, len(e.rules))
	copy(rules, e.rules)
	e.mu.Unlock()

	for _, rule := range rules {
		if rule.Match(dir, name, args) {
			return rule.Response.Stdout, rule.Response.Stderr, rule.Response.Err
		}
	}

	if e.fallback != nil {
		return e.fallback.Run(ctx, dir, stdin, name, args...)
	}

	return nil, nil, nil
}

// Ensure both executors implement CommandExecutor at compile time.
var (
	_ CommandExecutor = (*RealExecutor)(nil)
	_ CommandExecutor = (*MockExecutor)(nil)
)
