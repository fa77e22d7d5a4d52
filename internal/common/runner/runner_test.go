package runner

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	r := NewExecRunner(t.TempDir())

	result, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo hello; echo oops >&2"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Success() {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "hello\n")
	}
	if strings.TrimSpace(result.Stderr) != "oops" {
		t.Errorf("Stderr = %q, want %q", result.Stderr, "oops\n")
	}
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	r := NewExecRunner(t.TempDir())

	result, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo broken >&2; exit 3"},
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("expected ErrCommandFailed, got %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should carry stderr, got %q", err.Error())
	}
}

func TestExecRunnerUsesWorkDir(t *testing.T) {
	dir := t.TempDir()
	r := NewExecRunner(dir)

	result, err := r.Run(context.Background(), Command{Name: "pwd"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := filepath.EvalSymlinks(strings.TrimSpace(result.Stdout))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestExecRunnerMissingCommand(t *testing.T) {
	r := NewExecRunner(t.TempDir())

	if _, err := r.LookPath("definitely-not-a-real-tool-xyz"); !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("LookPath() error = %v, want ErrCommandNotFound", err)
	}

	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-real-tool-xyz"})
	if !errors.Is(err, ErrCommandNotFound) {
		t.Errorf("Run() error = %v, want ErrCommandNotFound", err)
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Command{Name: "prettier"}, "prettier"},
		{Command{Name: "pre-commit", Args: []string{"run", "--all-files"}}, "pre-commit run --all-files"},
	}
	for _, tt := range tests {
		if got := tt.cmd.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
