package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// genSettings generates Settings with varied paths and limits
func genSettings() gopter.Gen {
	return gopter.CombineGens(
		gen.RegexMatch(`^[a-z][a-z0-9]{0,10}$`),
		gen.RegexMatch(`^[a-z][a-z0-9_]{0,10}$`),
		gen.IntRange(1, 20),
		gen.IntRange(0, 6),
		gen.Bool(),
	).Map(func(values []interface{}) Settings {
		s := Defaults()
		s.AllowlistDir = values[0].(string)
		s.OutputDir = values[1].(string)
		s.GitHub.MaxPages = values[2].(int)
		s.HTTP.MaxRetries = values[3].(int)
		s.PostProcess = values[4].(bool)
		return s
	})
}

// **Feature: settings, Property 1: Configuration round-trip**
func TestSettingsRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("SaveTo then Load yields the same settings", prop.ForAll(
		func(s Settings) bool {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := s.SaveTo(path); err != nil {
				return false
			}
			loaded, err := Load(viper.New(), path)
			if err != nil {
				return false
			}
			return cmp.Diff(s, *loaded) == ""
		},
		genSettings(),
	))

	properties.TestingRun(t)
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s, err := Load(viper.New(), "")
	require.NoError(t, err)
	if diff := cmp.Diff(Defaults(), *s); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("UPKEEP_OUTPUT_DIR", "reports")
	t.Setenv("UPKEEP_GITHUB_MAX_PAGES", "2")
	t.Setenv("UPKEEP_POST_PROCESS", "false")

	s, err := Load(viper.New(), "")
	require.NoError(t, err)
	require.Equal(t, "reports", s.OutputDir)
	require.Equal(t, 2, s.GitHub.MaxPages)
	require.False(t, s.PostProcess)
}

func TestLoadPicksUpLocalConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "upkeep.yaml"), []byte("workflows_dir: ci/workflows\nhttp:\n  max_retries: 1\n"), 0644))

	s, err := Load(viper.New(), "")
	require.NoError(t, err)
	require.Equal(t, "ci/workflows", s.WorkflowsDir)
	require.Equal(t, 1, s.HTTP.MaxRetries)
	require.Equal(t, Defaults().HTTP.TimeoutSeconds, s.HTTP.TimeoutSeconds)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfigRead) {
		t.Fatalf("Load() error = %v, want ErrConfigRead", err)
	}
}

func TestRoot(t *testing.T) {
	dir := t.TempDir()

	s := Defaults()
	s.RepoRoot = dir
	root, err := s.Root()
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(root))

	s.RepoRoot = filepath.Join(dir, "missing")
	_, err = s.Root()
	require.ErrorIs(t, err, ErrRepoRootNotFound)

	s.RepoRoot = ""
	_, err = s.Root()
	require.ErrorIs(t, err, ErrRepoRootNotSet)
}

func TestRootExpandsOnlyOwnHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.Mkdir(filepath.Join(home, "repo"), 0755))

	s := Defaults()
	s.RepoRoot = "~/repo"
	root, err := s.Root()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "repo"), root)

	s.RepoRoot = "~"
	root, err = s.Root()
	require.NoError(t, err)
	require.Equal(t, home, root)

	// another user's home is not the current one
	s.RepoRoot = "~repo"
	_, err = s.Root()
	require.ErrorIs(t, err, ErrRepoRootNotFound)
}

func TestResolveAndReportPath(t *testing.T) {
	s := Defaults()
	require.Equal(t, "/repo/allowlists", Resolve("/repo", s.AllowlistDir))
	require.Equal(t, "/etc/allowlists", Resolve("/repo", "/etc/allowlists"))
	require.Equal(t, "/repo/output/maintenance_report.json", s.ReportPath("/repo"))
}
