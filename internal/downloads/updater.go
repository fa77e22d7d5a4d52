package downloads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/obentoo/upkeep/internal/allowlist"
	"github.com/obentoo/upkeep/internal/common/httpclient"
	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/common/versions"
	"github.com/obentoo/upkeep/internal/registry"
	"github.com/obentoo/upkeep/internal/report"
)

var (
	// ErrChecksumNotFound is returned when a manifest has no checksum for the platform
	ErrChecksumNotFound = errors.New("checksum not found in manifest")
	// ErrNoChecksumSource is returned when a target has neither URL template
	ErrNoChecksumSource = errors.New("no download or manifest URL template")
)

// versionPlaceholder is substituted in download and manifest URL templates
const versionPlaceholder = "{version}"

// Updater rewrites the targets of download allowlist entries and records
// every change in the run report.
type Updater struct {
	// root is the repository root target files are relative to
	root string
	// registry resolves the latest release of each entry
	registry *registry.Registry
	// http fetches manifests and artifacts for checksum reconciliation
	http *httpclient.RetryableClient
	report *report.Report
}

// NewUpdater creates an Updater for the repository at root
func NewUpdater(root string, reg *registry.Registry, hc *httpclient.RetryableClient, rep *report.Report) *Updater {
	return &Updater{root: root, registry: reg, http: hc, report: rep}
}

// UpdateFile applies one version pattern to the file at path and writes it
// back if anything changed. It returns the number of replaced captures.
func (u *Updater) UpdateFile(path, pattern, identifier string, latest versions.Version, g versions.Granularity) (int, error) {
	re, err := Compile(pattern, VersionGroup)
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	res := Rewrite(string(data), re, latest, g)
	if !res.Changed() {
		logger.Debug("No stale %s version in %s", identifier, path)
		return 0, nil
	}

	if err := writeFile(path, res.Text); err != nil {
		return 0, err
	}
	u.record(path, identifier, res)
	return res.Replacements, nil
}

// UpdateTargets processes every entry of a downloads allowlist. Failures
// are logged and skip only the entry or target concerned. It returns the
// number of files written.
func (u *Updater) UpdateTargets(ctx context.Context, al *allowlist.Allowlist) int {
	entries := al.Entries()
	logger.Info("Processing %d download targets from allowlist", len(entries))

	written := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			logger.Warn("Download updates interrupted: %v", ctx.Err())
			break
		}
		written += u.updateEntry(ctx, entry)
	}
	return written
}

func (u *Updater) updateEntry(ctx context.Context, entry allowlist.Entry) int {
	if entry.SkipVersionCheck {
		logger.Info("Skipping %s: version check disabled", entry.Identifier)
		return 0
	}

	src, ok := registry.SourceFor(entry)
	if !ok {
		logger.Warn("Skipping %s: %s cannot be resolved to a release", entry.Identifier, allowlist.Describe(entry.Source))
		return 0
	}

	logger.Debug("Resolving %s from %s", entry.Identifier, allowlist.Describe(entry.Source))
	rel, err := u.registry.FetchLatest(ctx, src)
	if err != nil {
		logger.Warn("Failed to resolve %s: %v", entry.Identifier, err)
		return 0
	}
	if rel == nil {
		logger.Warn("No qualifying release found for %s", entry.Identifier)
		return 0
	}
	logger.Info("Latest %s: %s", entry.Identifier, rel.Tag)

	written := 0
	for _, target := range entry.Targets {
		if u.updateTarget(ctx, entry, target, rel.Version) {
			written++
		}
	}
	return written
}

// updateTarget applies all patterns of target, then reconciles its checksum,
// then writes the file once. It reports whether the file was written.
func (u *Updater) updateTarget(ctx context.Context, entry allowlist.Entry, target allowlist.Target, latest versions.Version) bool {
	path := filepath.Join(u.root, target.File)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("Target file does not exist: %s", path)
		} else {
			logger.Warn("Cannot read target %s: %v", path, err)
		}
		return false
	}
	if len(target.Patterns) == 0 {
		logger.Warn("No patterns defined for %s in %s", entry.Identifier, target.File)
		return false
	}

	text := string(data)
	var results []Result
	for _, pattern := range target.Patterns {
		re, err := Compile(pattern, VersionGroup)
		if err != nil {
			logger.Warn("Skipping pattern for %s in %s: %v", entry.Identifier, target.File, err)
			continue
		}
		res := Rewrite(text, re, latest, entry.Format)
		if !res.Changed() {
			continue
		}
		logger.Info("Updated %d occurrence(s) of %s in %s (%s -> %s)",
			res.Replacements, entry.Identifier, target.File, res.Previous, res.Updated)
		text = res.Text
		results = append(results, res)
	}
	if len(results) == 0 {
		logger.Debug("%s is current in %s", entry.Identifier, target.File)
		return false
	}

	if target.SHA256Pattern != "" && (target.DownloadURLTemplate != "" || target.ManifestURLTemplate != "") {
		text = u.reconcileChecksum(ctx, text, target, versions.Format(latest, entry.Format))
	}

	if err := writeFile(path, text); err != nil {
		logger.Error("Failed to write %s: %v", path, err)
		return false
	}
	for _, res := range results {
		u.record(path, entry.Identifier, res)
	}
	return true
}

// reconcileChecksum returns text with the checksum of the formatted version
// substituted. Any failure leaves text unchanged.
func (u *Updater) reconcileChecksum(ctx context.Context, text string, target allowlist.Target, version string) string {
	re, err := Compile(target.SHA256Pattern, ChecksumGroup)
	if err != nil {
		logger.Warn("Skipping checksum for %s: %v", target.File, err)
		return text
	}

	checksum, err := u.ResolveChecksum(ctx, target, version)
	if err != nil {
		logger.Warn("Could not resolve checksum for %s: %v", target.File, err)
		return text
	}

	res := ReplaceChecksum(text, re, checksum)
	switch {
	case res.Matches == 0:
		logger.Warn("Checksum pattern not found in %s", target.File)
	case res.Matches > 1:
		logger.Warn("Multiple checksum matches in %s, updating first occurrence only", target.File)
	}
	if res.Changed {
		logger.Info("Updated checksum in %s: %s -> %s", target.File, abbreviate(res.Previous), abbreviate(checksum))
	}
	return res.Text
}

// ResolveChecksum returns the SHA-256 of the artifact for version. The
// manifest route is used when the target names a manifest and a platform;
// otherwise the artifact is downloaded and hashed.
func (u *Updater) ResolveChecksum(ctx context.Context, target allowlist.Target, version string) (string, error) {
	if target.ManifestURLTemplate != "" && target.Platform != "" {
		return u.manifestChecksum(ctx, expand(target.ManifestURLTemplate, version), target.Platform)
	}
	if target.DownloadURLTemplate != "" {
		return u.downloadChecksum(ctx, expand(target.DownloadURLTemplate, version))
	}
	return "", ErrNoChecksumSource
}

type manifest struct {
	Platforms map[string]struct {
		Checksum string `json:"checksum"`
	} `json:"platforms"`
}

func (u *Updater) manifestChecksum(ctx context.Context, url, platform string) (string, error) {
	logger.Debug("Fetching manifest %s", url)
	var doc manifest
	if err := u.http.FetchJSON(ctx, url, nil, &doc); err != nil {
		return "", fmt.Errorf("manifest %s: %w", url, err)
	}
	checksum := doc.Platforms[platform].Checksum
	if checksum == "" {
		return "", fmt.Errorf("%w: platform %s in %s", ErrChecksumNotFound, platform, url)
	}
	return checksum, nil
}

func (u *Updater) downloadChecksum(ctx context.Context, url string) (string, error) {
	logger.Debug("Downloading %s to compute checksum", url)
	var checksum string
	err := u.http.Download(ctx, url, func(body io.Reader) error {
		h := sha256.New()
		if _, err := io.Copy(h, body); err != nil {
			return err
		}
		checksum = hex.EncodeToString(h.Sum(nil))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	return checksum, nil
}

func (u *Updater) record(path, identifier string, res Result) {
	u.report.AddDownloadUpdate(report.DownloadUpdate{
		File:       u.relative(path),
		Identifier: identifier,
		Previous:   res.Previous,
		Updated:    res.Updated,
	})
}

func (u *Updater) relative(path string) string {
	if rel, err := filepath.Rel(u.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

func expand(template, version string) string {
	return strings.ReplaceAll(template, versionPlaceholder, version)
}

func abbreviate(checksum string) string {
	if len(checksum) > 16 {
		return checksum[:16] + "..."
	}
	return checksum
}

// writeFile replaces the contents of path, keeping its permissions
func writeFile(path, text string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, []byte(text), mode)
}
