package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var (
	ErrCommandNotFound = errors.New("command not found")
	ErrCommandFailed   = errors.New("command failed")
)

// ExecRunner runs commands on the host with os/exec
type ExecRunner struct {
	workDir string
}

// NewExecRunner creates a new ExecRunner. workDir is used for commands
// that do not set their own Dir.
func NewExecRunner(workDir string) *ExecRunner {
	return &ExecRunner{
		workDir: workDir,
	}
}

// LookPath searches PATH for the named executable
func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	return path, nil
}

// Run executes cmd and waits for it to finish. A non-zero exit is reported
// both in Result.ExitCode and as an error wrapping ErrCommandFailed.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if c.Dir == "" {
		c.Dir = r.workDir
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	if cmd.Stream {
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
	} else {
		c.Stdout = &stdoutBuf
		c.Stderr = &stderrBuf
	}

	err := c.Run()
	result := Result{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}
	if err == nil {
		return result, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		result.ExitCode = -1
		return result, fmt.Errorf("%w: %s", ErrCommandNotFound, cmd.Name)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		failure := fmt.Errorf("%w: %s exited with code %d", ErrCommandFailed, cmd.String(), result.ExitCode)
		if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
			return result, errors.Join(failure, errors.New(stderr))
		}
		return result, failure
	}

	result.ExitCode = -1
	return result, fmt.Errorf("%w: %s: %v", ErrCommandFailed, cmd.String(), err)
}

// String renders the command line for log messages
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}
