// Package maintenance wires the allowlists, registry clients and rewriters
// into the maintenance tasks of one repository.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/obentoo/upkeep/internal/allowlist"
	"github.com/obentoo/upkeep/internal/common/config"
	"github.com/obentoo/upkeep/internal/common/github"
	"github.com/obentoo/upkeep/internal/common/httpclient"
	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/common/runner"
	"github.com/obentoo/upkeep/internal/common/version"
	"github.com/obentoo/upkeep/internal/downloads"
	"github.com/obentoo/upkeep/internal/lockfile"
	"github.com/obentoo/upkeep/internal/registry"
	"github.com/obentoo/upkeep/internal/report"
	"github.com/obentoo/upkeep/internal/workflows"
)

// Engine runs maintenance tasks against one repository. All tasks share a
// registry cache and append to the same report.
type Engine struct {
	settings   *config.Settings
	root       string
	runner     runner.Runner
	http       *httpclient.RetryableClient
	registry   *registry.Registry
	cache      *registry.Cache
	allowlists map[allowlist.Category]*allowlist.Allowlist
	report     *report.Report
}

// Option configures an Engine
type Option func(*Engine)

// WithRunner replaces the runner used for external tools
func WithRunner(r runner.Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithHTTPClient replaces the HTTP client shared by every upstream call
func WithHTTPClient(hc *httpclient.RetryableClient) Option {
	return func(e *Engine) { e.http = hc }
}

// New validates the repository root and loads the allowlists. A missing
// root is a NotFound error.
func New(settings *config.Settings, opts ...Option) (*Engine, error) {
	root, err := settings.Root()
	if err != nil {
		code := errbuilder.CodeInvalidArgument
		if errors.Is(err, config.ErrRepoRootNotFound) {
			code = errbuilder.CodeNotFound
		}
		return nil, errbuilder.New().
			WithCode(code).
			WithMsg("invalid repository root").
			WithCause(err)
	}

	e := &Engine{
		settings: settings,
		root:     root,
		report:   report.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = runner.NewExecRunner(root)
	}
	if e.http == nil {
		e.http = httpclient.NewWithConfig(httpclient.RetryConfig{
			MaxRetries:      settings.HTTP.MaxRetries,
			BaseDelay:       settings.HTTP.BaseDelay(),
			MaxDelay:        settings.HTTP.MaxDelay(),
			Timeout:         settings.HTTP.Timeout(),
			DownloadTimeout: settings.HTTP.DownloadTimeout(),
		})
		e.http.SetDefaultHeaders(map[string]string{"User-Agent": version.UserAgent()})
	}

	gh := github.NewClient(e.http)
	if settings.GitHub.APIURL != "" {
		gh.BaseURL = settings.GitHub.APIURL
	}
	if settings.GitHub.Token != "" {
		gh.Token = settings.GitHub.Token
	}
	if gh.Token == "" {
		logger.Debug("No GitHub token configured; using unauthenticated API access")
	}

	e.cache = registry.NewCache()
	e.registry = registry.New(e.http, gh, e.cache,
		registry.WithNPMURL(settings.Registries.NPM),
		registry.WithPyPIURL(settings.Registries.PyPI),
		registry.WithHomebrewURL(settings.Registries.Homebrew),
		registry.WithMaxPages(settings.GitHub.MaxPages),
	)

	dir := config.Resolve(root, settings.AllowlistDir)
	logger.Debug("Loading allowlists from %s", dir)
	e.allowlists = allowlist.LoadAll(dir)
	return e, nil
}

// Root returns the absolute repository root
func (e *Engine) Root() string {
	return e.root
}

// Report returns the report shared by every task
func (e *Engine) Report() *report.Report {
	return e.report
}

// Allowlist returns the loaded allowlist of a category
func (e *Engine) Allowlist(cat allowlist.Category) *allowlist.Allowlist {
	if al, ok := e.allowlists[cat]; ok {
		return al
	}
	return allowlist.Empty(cat)
}

// UpdateWorkflows rewrites stale action references and returns the files
// that changed. A missing workflows directory is skipped.
func (e *Engine) UpdateWorkflows(ctx context.Context) ([]string, error) {
	dir := config.Resolve(e.root, e.settings.WorkflowsDir)
	if _, err := os.Stat(dir); err != nil {
		logger.Info("No workflows directory found; skipping workflow updates")
		return nil, nil
	}

	u := workflows.NewUpdater(e.root, e.registry, e.Allowlist(allowlist.Actions), e.report)
	updated, err := u.UpdateWorkflows(ctx, dir)
	if err != nil {
		return updated, err
	}
	if len(updated) > 0 {
		logger.Info("Updated GitHub Actions workflows: %v", updated)
	}
	return updated, nil
}

// UpdateDownloads rewrites the targets of the downloads allowlist and
// returns the number of files written.
func (e *Engine) UpdateDownloads(ctx context.Context) int {
	al := e.Allowlist(allowlist.Downloads)
	if al.Len() == 0 {
		logger.Info("Downloads allowlist is empty; skipping")
		return 0
	}
	return downloads.NewUpdater(e.root, e.registry, e.http, e.report).UpdateTargets(ctx, al)
}

// UpdateLockfile regenerates the devcontainer lockfile
func (e *Engine) UpdateLockfile(ctx context.Context) error {
	_, err := lockfile.NewReconciler(e.root, e.runner, e.report).Reconcile(ctx)
	return err
}

// BuildDevcontainer runs a devcontainer build of the repository
func (e *Engine) BuildDevcontainer(ctx context.Context) error {
	return lockfile.NewReconciler(e.root, e.runner, e.report).Build(ctx)
}

// CacheStats returns the hits and misses of the lookup cache shared by
// every task
func (e *Engine) CacheStats() (hits, misses int) {
	return e.cache.Stats()
}

// WriteReport serializes the report to the configured output path
func (e *Engine) WriteReport() (string, error) {
	path := e.settings.ReportPath(e.root)
	if err := e.report.WriteFile(path); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to write report to %s", path)).
			WithCause(err)
	}
	logger.Info("Wrote maintenance report to %s", path)
	return path, nil
}

// Result summarizes a full run
type Result struct {
	UpdatedWorkflows []string
	UpdatedDownloads int
	Homebrew         []HomebrewVersion
	ReportPath       string
}

// Run performs every task in order: workflows, downloads, Homebrew lookup,
// lockfile, post-processing, then the report. Only a failing lock tool or
// an unwritable report aborts; the report is still written on abort so the
// rewrites already made stay auditable.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	assert.NotEmpty(ctx, e.root, "repository root must be resolved")
	res := &Result{}

	updated, err := e.UpdateWorkflows(ctx)
	if err != nil {
		logger.Warn("Workflow updates incomplete: %v", err)
	}
	res.UpdatedWorkflows = updated
	res.UpdatedDownloads = e.UpdateDownloads(ctx)
	res.Homebrew = e.HomebrewVersions(ctx)

	if err := e.UpdateLockfile(ctx); err != nil {
		if _, werr := e.WriteReport(); werr != nil {
			logger.Error("%v", werr)
		}
		return res, err
	}

	if e.settings.PostProcess {
		e.PostProcess(ctx)
	}

	path, err := e.WriteReport()
	if err != nil {
		return res, err
	}
	res.ReportPath = path
	hits, misses := e.CacheStats()
	logger.Debug("Upstream lookups: %d cached, %d fetched", hits, misses)
	logger.L().Info().
		Int("workflows", len(res.UpdatedWorkflows)).
		Int("downloads", res.UpdatedDownloads).
		Int("lockfile", len(e.report.LockfileUpdates())).
		Str("report", path).
		Msg("maintenance run complete")
	return res, nil
}
