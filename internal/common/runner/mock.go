package runner

import (
	"context"
	"fmt"
)

// MockRunner implements Runner for testing.
// Each method can be configured with a custom function to control behavior.
// Without a LookPathFunc every tool is reported as installed under /usr/bin.
type MockRunner struct {
	LookPathFunc func(name string) (string, error)
	RunFunc      func(ctx context.Context, cmd Command) (Result, error)

	// Calls records every command passed to Run, in order
	Calls []Command
}

// NewMockRunner creates a new MockRunner
func NewMockRunner() *MockRunner {
	return &MockRunner{}
}

// LookPath reports the configured location of name
func (m *MockRunner) LookPath(name string) (string, error) {
	if m.LookPathFunc != nil {
		return m.LookPathFunc(name)
	}
	return "/usr/bin/" + name, nil
}

// Run records cmd and returns the configured result
func (m *MockRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	m.Calls = append(m.Calls, cmd)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, cmd)
	}
	return Result{}, nil
}

// Missing returns a LookPathFunc that reports the given tools as not installed
func Missing(tools ...string) func(name string) (string, error) {
	missing := make(map[string]bool, len(tools))
	for _, t := range tools {
		missing[t] = true
	}
	return func(name string) (string, error) {
		if missing[name] {
			return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
		}
		return "/usr/bin/" + name, nil
	}
}

// Ensure MockRunner implements Runner
var _ Runner = (*MockRunner)(nil)
var _ Runner = (*ExecRunner)(nil)
