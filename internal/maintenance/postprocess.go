package maintenance

import (
	"context"

	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/common/runner"
)

// Post-processing tools
const (
	Prettier  = "prettier"
	PreCommit = "pre-commit"
)

// PostProcess formats the YAML files and runs the pre-commit hooks. Missing
// tools are skipped. Failures are logged and never abort the run.
func (e *Engine) PostProcess(ctx context.Context) {
	e.runPrettier(ctx)
	e.runPreCommit(ctx)
}

func (e *Engine) runPrettier(ctx context.Context) {
	if _, err := e.runner.LookPath(Prettier); err != nil {
		logger.Info("%s not found; skipping YAML formatting", Prettier)
		return
	}
	e.exec(ctx, runner.Command{Name: Prettier, Args: []string{"--write", "**/*.{yaml,yml}"}})
}

func (e *Engine) runPreCommit(ctx context.Context) {
	if _, err := e.runner.LookPath(PreCommit); err != nil {
		logger.Info("%s not found; skipping hooks", PreCommit)
		return
	}
	if !e.exec(ctx, runner.Command{Name: PreCommit, Args: []string{"install-hooks"}}) {
		return
	}
	if !e.exec(ctx, runner.Command{Name: PreCommit, Args: []string{"run", "--all-files"}}) {
		logger.Info("Some pre-commit hooks may have made fixes; review the working tree")
	}
}

// exec runs cmd from the repository root and reports whether it succeeded
func (e *Engine) exec(ctx context.Context, cmd runner.Command) bool {
	cmd.Dir = e.root
	cmd.Stream = true
	logger.Info("Running: %s", cmd)
	res, err := e.runner.Run(ctx, cmd)
	if err != nil {
		logger.Warn("%s failed: %v", cmd, err)
		return false
	}
	if !res.Success() {
		logger.Warn("%s exited with code %d", cmd, res.ExitCode)
		return false
	}
	return true
}
