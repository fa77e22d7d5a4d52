package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/common/runner"
	"github.com/obentoo/upkeep/internal/report"
)

// Tool is the lock-regeneration CLI
const Tool = "devcontainer"

// Paths relative to the repository root
const (
	ConfigPath = ".devcontainer/devcontainer.json"
	LockPath   = ".devcontainer/devcontainer-lock.json"
)

// Reconciler refreshes the lockfile of one repository
type Reconciler struct {
	root   string
	runner runner.Runner
	report *report.Report
}

// NewReconciler creates a Reconciler for the repository at root
func NewReconciler(root string, r runner.Runner, rep *report.Report) *Reconciler {
	return &Reconciler{root: root, runner: r, report: rep}
}

// Reconcile regenerates the lockfile and records every feature that moved.
// A missing CLI, devcontainer.json or feature list makes it a logged no-op.
// A failing CLI returns an Internal error, since the lockfile state is then
// unknown.
func (c *Reconciler) Reconcile(ctx context.Context) ([]report.LockfileUpdate, error) {
	if !c.ready() {
		return nil, nil
	}

	lockPath := filepath.Join(c.root, filepath.FromSlash(LockPath))
	before, existed := Read(lockPath)

	if err := c.invoke(ctx, "upgrade"); err != nil {
		return nil, err
	}

	if _, err := os.Stat(lockPath); err != nil {
		logger.Warn("%s completed but no lockfile was produced at %s", Tool, lockPath)
		return nil, nil
	}
	after, _ := Read(lockPath)

	changes := Diff(before, after)
	if len(changes) == 0 {
		logger.Info("Devcontainer lockfile already up to date")
		return nil, nil
	}
	for _, change := range changes {
		c.report.AddLockfileUpdate(change)
	}
	if !existed || len(before) == 0 {
		logger.Info("Generated new devcontainer lockfile with %d entries", len(changes))
	} else {
		logger.Info("Updated devcontainer lockfile with %d changes", len(changes))
	}
	return changes, nil
}

// Build runs a devcontainer build of the repository as a smoke test
func (c *Reconciler) Build(ctx context.Context) error {
	if _, err := c.runner.LookPath(Tool); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("%s CLI not found; install @devcontainers/cli", Tool)).
			WithCause(err)
	}
	if err := c.invoke(ctx, "build"); err != nil {
		return err
	}
	logger.Info("Devcontainer build succeeded")
	return nil
}

// ready checks the preconditions of Reconcile
func (c *Reconciler) ready() bool {
	if _, err := c.runner.LookPath(Tool); err != nil {
		logger.Warn("%s CLI not found in PATH; skipping lockfile refresh", Tool)
		return false
	}

	configPath := filepath.Join(c.root, filepath.FromSlash(ConfigPath))
	data, err := os.ReadFile(configPath)
	if err != nil {
		logger.Info("No devcontainer configuration found; skipping lockfile update")
		return false
	}

	var config struct {
		Features map[string]json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &config); err != nil {
		logger.Warn("Could not parse %s: %v", configPath, err)
		return false
	}
	if len(config.Features) == 0 {
		logger.Info("No features defined in devcontainer.json; skipping lockfile update")
		return false
	}
	return true
}

func (c *Reconciler) invoke(ctx context.Context, subcommand string) error {
	assert.NotEmpty(ctx, c.root, "workspace folder must be set")
	cmd := runner.Command{
		Name:   Tool,
		Args:   []string{subcommand, "--workspace-folder", c.root, "--log-level", "info"},
		Dir:    c.root,
		Stream: true,
	}
	logger.Info("Running: %s", cmd)

	res, err := c.runner.Run(ctx, cmd)
	if err == nil && res.Success() {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("%w: %s exited with code %d", runner.ErrCommandFailed, cmd, res.ExitCode)
	}
	logger.Error("%s %s failed with exit code %d", Tool, subcommand, res.ExitCode)
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("%s %s failed", Tool, subcommand)).
		WithCause(err)
}
