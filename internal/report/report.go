// Package report accumulates the change records produced during a run and
// serializes them as the maintenance report.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ActionUpdate records a rewritten `uses:` reference in a workflow file
type ActionUpdate struct {
	File     string `json:"file"`
	Action   string `json:"action"`
	Previous string `json:"previous"`
	Updated  string `json:"updated"`
}

// DownloadUpdate records a version rewritten in a tracked manifest
type DownloadUpdate struct {
	File       string `json:"file"`
	Identifier string `json:"identifier"`
	Previous   string `json:"previous"`
	Updated    string `json:"updated"`
}

// FeatureEntry is the normalized lock state of one devcontainer feature.
// Absent fields are nil.
type FeatureEntry struct {
	Version   *string `json:"version,omitempty"`
	Resolved  *string `json:"resolved,omitempty"`
	Integrity *string `json:"integrity,omitempty"`
}

// LockfileUpdate records a feature whose lock entry changed. A nil side means
// the feature did not exist in that version of the lockfile.
type LockfileUpdate struct {
	Feature  string        `json:"feature"`
	Previous *FeatureEntry `json:"previous"`
	Updated  *FeatureEntry `json:"updated"`
}

// Report is an append-only sink shared by every rewriter in a run
type Report struct {
	actions   []ActionUpdate
	downloads []DownloadUpdate
	lockfile  []LockfileUpdate
}

// New creates an empty report
func New() *Report {
	return &Report{}
}

// AddActionUpdate appends a workflow reference change
func (r *Report) AddActionUpdate(u ActionUpdate) { r.actions = append(r.actions, u) }

// AddDownloadUpdate appends a manifest version change
func (r *Report) AddDownloadUpdate(u DownloadUpdate) { r.downloads = append(r.downloads, u) }

// AddLockfileUpdate appends a lockfile feature change
func (r *Report) AddLockfileUpdate(u LockfileUpdate) { r.lockfile = append(r.lockfile, u) }

// ActionUpdates returns a copy of the workflow changes in insertion order
func (r *Report) ActionUpdates() []ActionUpdate {
	return append([]ActionUpdate(nil), r.actions...)
}

// DownloadUpdates returns a copy of the manifest changes in insertion order
func (r *Report) DownloadUpdates() []DownloadUpdate {
	return append([]DownloadUpdate(nil), r.downloads...)
}

// LockfileUpdates returns a copy of the lockfile changes in insertion order
func (r *Report) LockfileUpdates() []LockfileUpdate {
	return append([]LockfileUpdate(nil), r.lockfile...)
}

// Len returns the total number of records
func (r *Report) Len() int {
	return len(r.actions) + len(r.downloads) + len(r.lockfile)
}

// Empty reports whether nothing changed
func (r *Report) Empty() bool {
	return r.Len() == 0
}

type document struct {
	GitHubActions []ActionUpdate   `json:"github_actions"`
	Downloads     []DownloadUpdate `json:"downloads"`
	Lockfile      []LockfileUpdate `json:"lockfile"`
}

// MarshalJSON emits the three lists, always as arrays
func (r *Report) MarshalJSON() ([]byte, error) {
	doc := document{
		GitHubActions: r.actions,
		Downloads:     r.downloads,
		Lockfile:      r.lockfile,
	}
	if doc.GitHubActions == nil {
		doc.GitHubActions = []ActionUpdate{}
	}
	if doc.Downloads == nil {
		doc.Downloads = []DownloadUpdate{}
	}
	if doc.Lockfile == nil {
		doc.Lockfile = []LockfileUpdate{}
	}
	return json.Marshal(doc)
}

// WriteFile writes the report as indented JSON, creating parent directories
func (r *Report) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
