package runner

import "context"

// Runner defines the interface for invoking external tools.
// This interface allows for mocking process execution in tests.
type Runner interface {
	// LookPath reports where the named executable lives, or an error
	// wrapping ErrCommandNotFound when it is not installed
	LookPath(name string) (string, error)

	// Run executes the command and returns its structured result
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Command describes a single external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Stream forwards the child's stdout/stderr to ours instead of capturing it
	Stream bool
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the process exited with status zero
func (r Result) Success() bool {
	return r.ExitCode == 0
}
