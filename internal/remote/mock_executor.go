package remote

import (
	"context"
	"io"
	"strings"
	"sync"
)

// MockCall records one command issued to the mock executor.
type MockCall struct {
	Command string
	Stdin   string
}

// MockRule scripts the outcome for commands containing Match.
type MockRule struct {
	Match  string
	Result Result
	Err    error
}

// MockExecutor is a scripted Executor for tests. Commands are matched
// against rules in order by substring; unmatched commands succeed with the
// default result. Every call is recorded.
type MockExecutor struct {
	HostName string
	Rules    []MockRule
	Default  Result

	mu    sync.Mutex
	calls []MockCall
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{HostName: "mock.example.com"}
}

func (m *MockExecutor) Host() string {
	return m.HostName
}

func (m *MockExecutor) Run(ctx context.Context, command string) (Result, error) {
	return m.RunInput(ctx, command, nil)
}

func (m *MockExecutor) RunInput(ctx context.Context, command string, stdin io.Reader) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}

	var in string
	if stdin != nil {
		data, _ := io.ReadAll(stdin)
		in = string(data)
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Command: command, Stdin: in})
	m.mu.Unlock()

	for _, r := range m.Rules {
		if strings.Contains(command, r.Match) {
			return r.Result, r.Err
		}
	}
	return m.Default, nil
}

// Fail scripts a non-zero exit for commands containing match.
func (m *MockExecutor) Fail(match string, output string) *MockExecutor {
	m.Rules = append(m.Rules, MockRule{Match: match, Result: Result{ExitCode: 1, Output: output}})
	return m
}

// Respond scripts a successful result with output for commands containing
// match.
func (m *MockExecutor) Respond(match, output string) *MockExecutor {
	m.Rules = append(m.Rules, MockRule{Match: match, Result: Result{ExitCode: 0, Output: output}})
	return m
}

// Error scripts a transport-level failure for commands containing match.
func (m *MockExecutor) Error(match string, err error) *MockExecutor {
	m.Rules = append(m.Rules, MockRule{Match: match, Err: err, Result: Result{ExitCode: -1}})
	return m
}

// Calls returns a copy of every recorded call.
func (m *MockExecutor) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CalledWith reports whether any recorded command contains substr.
func (m *MockExecutor) CalledWith(substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if strings.Contains(c.Command, substr) {
			return true
		}
	}
	return false
}

// CountCalls returns how many recorded commands contain substr.
func (m *MockExecutor) CountCalls(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.Contains(c.Command, substr) {
			n++
		}
	}
	return n
}
