package lockfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obentoo/upkeep/internal/common/runner"
	"github.com/obentoo/upkeep/internal/report"
)

func str(s string) *string { return &s }

func decode(t *testing.T, doc string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(doc), &v))
	return v
}

// =============================================================================
// Property-Based Tests
// =============================================================================

func genFeatures() gopter.Gen {
	return gen.MapOf(
		gen.OneConstOf("feat-a", "feat-b", "feat-c", "feat-d"),
		gen.OneConstOf("1.0", "1.1", "2.0"),
	).Map(func(m map[string]string) Features {
		out := Features{}
		for id, v := range m {
			out[id] = report.FeatureEntry{Version: str(v)}
		}
		return out
	})
}

// **Feature: lockfile-diff, Property: Diff correctness**
func TestDiffCorrectness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("changes are exactly the added, removed and modified features", prop.ForAll(
		func(old, new Features) bool {
			want := map[string]bool{}
			for id, prev := range old {
				if next, ok := new[id]; !ok || *next.Version != *prev.Version {
					want[id] = true
				}
			}
			for id := range new {
				if _, ok := old[id]; !ok {
					want[id] = true
				}
			}

			changes := Diff(old, new)
			if len(changes) != len(want) {
				return false
			}
			for i, c := range changes {
				if !want[c.Feature] || (i > 0 && changes[i-1].Feature >= c.Feature) {
					return false
				}
				_, inOld := old[c.Feature]
				_, inNew := new[c.Feature]
				if (c.Previous != nil) != inOld || (c.Updated != nil) != inNew {
					return false
				}
			}
			return true
		},
		genFeatures(),
		genFeatures(),
	))

	properties.Property("a map never differs from itself", prop.ForAll(
		func(fs Features) bool {
			return len(Diff(fs, fs)) == 0
		},
		genFeatures(),
	))

	properties.TestingRun(t)
}

// =============================================================================
// Unit Tests
// =============================================================================

func TestDiffScenario(t *testing.T) {
	old := Normalize(decode(t, `{"feat-a": {"version": "1.0"}}`))
	new := Normalize(decode(t, `{"feat-a": {"version": "1.1"}, "feat-b": {"version": "2.0"}}`))

	want := []report.LockfileUpdate{
		{Feature: "feat-a", Previous: &report.FeatureEntry{Version: str("1.0")}, Updated: &report.FeatureEntry{Version: str("1.1")}},
		{Feature: "feat-b", Previous: nil, Updated: &report.FeatureEntry{Version: str("2.0")}},
	}
	if diff := cmp.Diff(want, Diff(old, new)); diff != "" {
		t.Errorf("Diff() mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffIgnoresUntrackedFields(t *testing.T) {
	old := Normalize(decode(t, `{"f": {"version": "1", "dependsOn": ["x"]}}`))
	new := Normalize(decode(t, `{"f": {"version": "1", "dependsOn": ["y"]}}`))
	assert.Empty(t, Diff(old, new))
}

func TestNormalize(t *testing.T) {
	full := report.FeatureEntry{Version: str("1.2.0"), Resolved: str("ghcr.io/x@sha256:abc"), Integrity: str("sha256:abc")}
	tests := []struct {
		name string
		doc  string
		want Features
	}{
		{
			name: "mapping",
			doc:  `{"ghcr.io/x:1": {"version": "1.2.0", "resolved": "ghcr.io/x@sha256:abc", "integrity": "sha256:abc", "extra": true}}`,
			want: Features{"ghcr.io/x:1": full},
		},
		{
			name: "list with id",
			doc:  `[{"id": "ghcr.io/x:1", "version": "1.2.0", "resolved": "ghcr.io/x@sha256:abc", "integrity": "sha256:abc"}, {"version": "9"}, "junk"]`,
			want: Features{"ghcr.io/x:1": full},
		},
		{
			name: "missing fields stay nil",
			doc:  `{"f": {"version": 2}}`,
			want: Features{"f": {Version: str("2")}},
		},
		{name: "string", doc: `"features"`, want: Features{}},
		{name: "null", doc: `null`, want: Features{}},
		{name: "number", doc: `3`, want: Features{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Normalize(decode(t, tt.doc))); diff != "" {
				t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()

	fs, exists := Read(filepath.Join(dir, "absent.json"))
	assert.False(t, exists)
	assert.Empty(t, fs)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	fs, exists = Read(bad)
	assert.True(t, exists)
	assert.Empty(t, fs)

	odd := filepath.Join(dir, "odd.json")
	require.NoError(t, os.WriteFile(odd, []byte(`{"features": 42}`), 0o644))
	fs, _ = Read(odd)
	assert.Empty(t, fs)
}

// =============================================================================
// Reconciler
// =============================================================================

func repoWithFeatures(t *testing.T, config, lock string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".devcontainer"), 0o755))
	if config != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, ConfigPath), []byte(config), 0o644))
	}
	if lock != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, LockPath), []byte(lock), 0o644))
	}
	return root
}

const withFeatures = `{"image": "debian", "features": {"ghcr.io/devcontainers/features/node:1": {}}}`

func TestReconcileRecordsChanges(t *testing.T) {
	root := repoWithFeatures(t, withFeatures, `{"features": {"feat-a": {"version": "1.0"}}}`)
	mock := runner.NewMockRunner()
	mock.RunFunc = func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
		return runner.Result{}, os.WriteFile(filepath.Join(root, LockPath),
			[]byte(`{"features": [{"id": "feat-a", "version": "1.1"}, {"id": "feat-b", "version": "2.0"}]}`), 0o644)
	}
	rep := report.New()

	changes, err := NewReconciler(root, mock, rep).Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, changes, rep.LockfileUpdates())

	require.Len(t, mock.Calls, 1)
	assert.Equal(t, runner.Command{
		Name:   "devcontainer",
		Args:   []string{"upgrade", "--workspace-folder", root, "--log-level", "info"},
		Dir:    root,
		Stream: true,
	}, mock.Calls[0])
}

func TestReconcileCreation(t *testing.T) {
	root := repoWithFeatures(t, withFeatures, "")
	mock := runner.NewMockRunner()
	mock.RunFunc = func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
		return runner.Result{}, os.WriteFile(filepath.Join(root, LockPath), []byte(`{"features": {"f": {"version": "1"}}}`), 0o644)
	}

	changes, err := NewReconciler(root, mock, report.New()).Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Nil(t, changes[0].Previous)
}

func TestReconcilePreconditions(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		missing bool
	}{
		{name: "cli missing", config: withFeatures, missing: true},
		{name: "no config"},
		{name: "invalid config", config: `{"features": `},
		{name: "no features", config: `{"image": "debian", "features": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := repoWithFeatures(t, tt.config, "")
			mock := runner.NewMockRunner()
			if tt.missing {
				mock.LookPathFunc = runner.Missing(Tool)
			}
			rep := report.New()

			changes, err := NewReconciler(root, mock, rep).Reconcile(context.Background())
			require.NoError(t, err)
			assert.Empty(t, changes)
			assert.Empty(t, mock.Calls)
			assert.True(t, rep.Empty())
		})
	}
}

func TestReconcileToolFailureIsInternal(t *testing.T) {
	root := repoWithFeatures(t, withFeatures, "")
	mock := runner.NewMockRunner()
	mock.RunFunc = func(ctx context.Context, cmd runner.Command) (runner.Result, error) {
		return runner.Result{ExitCode: 1}, nil
	}

	_, err := NewReconciler(root, mock, report.New()).Reconcile(context.Background())
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInternal, errbuilder.CodeOf(err))
}

func TestReconcileWithoutProducedLockfile(t *testing.T) {
	root := repoWithFeatures(t, withFeatures, "")
	rep := report.New()

	changes, err := NewReconciler(root, runner.NewMockRunner(), rep).Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.True(t, rep.Empty())
}

func TestBuild(t *testing.T) {
	root := t.TempDir()
	mock := runner.NewMockRunner()
	require.NoError(t, NewReconciler(root, mock, report.New()).Build(context.Background()))
	require.Len(t, mock.Calls, 1)
	assert.Equal(t, []string{"build", "--workspace-folder", root, "--log-level", "info"}, mock.Calls[0].Args)

	mock.LookPathFunc = runner.Missing(Tool)
	err := NewReconciler(root, mock, report.New()).Build(context.Background())
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
}
