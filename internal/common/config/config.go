package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. UPKEEP_REPO_ROOT
const EnvPrefix = "UPKEEP"

var (
	ErrRepoRootNotSet   = errors.New("repository root is not configured")
	ErrRepoRootNotFound = errors.New("repository root does not exist")
	ErrConfigRead       = errors.New("failed to read config file")
)

// Settings represents the application configuration
type Settings struct {
	RepoRoot     string `mapstructure:"repo_root" yaml:"repo_root"`
	AllowlistDir string `mapstructure:"allowlist_dir" yaml:"allowlist_dir"`
	WorkflowsDir string `mapstructure:"workflows_dir" yaml:"workflows_dir"`
	OutputDir    string `mapstructure:"output_dir" yaml:"output_dir"`
	ReportName   string `mapstructure:"report_name" yaml:"report_name"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`
	PostProcess  bool   `mapstructure:"post_process" yaml:"post_process"`

	GitHub     GitHubSettings   `mapstructure:"github" yaml:"github"`
	Registries RegistrySettings `mapstructure:"registries" yaml:"registries"`
	HTTP       HTTPSettings     `mapstructure:"http" yaml:"http"`
}

// GitHubSettings holds GitHub API settings
type GitHubSettings struct {
	APIURL   string `mapstructure:"api_url" yaml:"api_url"`
	MaxPages int    `mapstructure:"max_pages" yaml:"max_pages"`
	Token    string `mapstructure:"token" yaml:"token,omitempty"` // Overrides GITHUB_TOKEN / GH_TOKEN
}

// RegistrySettings holds base URLs of the package registries
type RegistrySettings struct {
	NPM      string `mapstructure:"npm" yaml:"npm"`
	PyPI     string `mapstructure:"pypi" yaml:"pypi"`
	Homebrew string `mapstructure:"homebrew" yaml:"homebrew"`
}

// HTTPSettings holds retry and timeout settings for upstream requests
type HTTPSettings struct {
	MaxRetries             int `mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelaySeconds       int `mapstructure:"base_delay_seconds" yaml:"base_delay_seconds"`
	MaxDelaySeconds        int `mapstructure:"max_delay_seconds" yaml:"max_delay_seconds"`
	TimeoutSeconds         int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	DownloadTimeoutSeconds int `mapstructure:"download_timeout_seconds" yaml:"download_timeout_seconds"`
}

// Defaults returns the built-in settings
func Defaults() Settings {
	return Settings{
		RepoRoot:     ".",
		AllowlistDir: "allowlists",
		WorkflowsDir: filepath.Join(".github", "workflows"),
		OutputDir:    "output",
		ReportName:   "maintenance_report.json",
		LogLevel:     "info",
		PostProcess:  true,
		GitHub: GitHubSettings{
			APIURL:   "https://api.github.com",
			MaxPages: 5,
		},
		Registries: RegistrySettings{
			NPM:      "https://registry.npmjs.org",
			PyPI:     "https://pypi.org",
			Homebrew: "https://formulae.brew.sh",
		},
		HTTP: HTTPSettings{
			MaxRetries:             3,
			BaseDelaySeconds:       1,
			MaxDelaySeconds:        8,
			TimeoutSeconds:         30,
			DownloadTimeoutSeconds: 120,
		},
	}
}

// SetDefaults registers every key with its default so that environment
// overrides are visible to Unmarshal
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("repo_root", d.RepoRoot)
	v.SetDefault("allowlist_dir", d.AllowlistDir)
	v.SetDefault("workflows_dir", d.WorkflowsDir)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("report_name", d.ReportName)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("post_process", d.PostProcess)
	v.SetDefault("github.api_url", d.GitHub.APIURL)
	v.SetDefault("github.max_pages", d.GitHub.MaxPages)
	v.SetDefault("github.token", "")
	v.SetDefault("registries.npm", d.Registries.NPM)
	v.SetDefault("registries.pypi", d.Registries.PyPI)
	v.SetDefault("registries.homebrew", d.Registries.Homebrew)
	v.SetDefault("http.max_retries", d.HTTP.MaxRetries)
	v.SetDefault("http.base_delay_seconds", d.HTTP.BaseDelaySeconds)
	v.SetDefault("http.max_delay_seconds", d.HTTP.MaxDelaySeconds)
	v.SetDefault("http.timeout_seconds", d.HTTP.TimeoutSeconds)
	v.SetDefault("http.download_timeout_seconds", d.HTTP.DownloadTimeoutSeconds)
}

// ConfigPaths returns all possible config file paths in priority order
// 1. ./upkeep.yaml
// 2. ~/.config/upkeep/config.yaml (XDG standard)
func ConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		"upkeep.yaml",
		filepath.Join(xdgConfig, "upkeep", "config.yaml"),
	}, nil
}

// Load builds Settings from defaults, the config file, UPKEEP_* environment
// variables and any flags already bound to v. An explicit configFile must be
// readable; otherwise the first existing entry of ConfigPaths is used.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfigRead, configFile, err)
		}
	} else if paths, err := ConfigPaths(); err == nil {
		for _, p := range paths {
			if _, statErr := os.Stat(p); statErr != nil {
				continue
			}
			v.SetConfigFile(p)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrConfigRead, p, err)
			}
			break
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &s, nil
}

// SaveTo writes the settings to a specific file path as YAML
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Root returns the validated, absolute repository root
func (s *Settings) Root() (string, error) {
	if s.RepoRoot == "" {
		return "", ErrRepoRootNotSet
	}

	path := s.RepoRoot
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRepoRootNotFound, abs)
	}
	return abs, nil
}

// Resolve joins a configured path onto root unless it is already absolute
func Resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// ReportPath returns where the maintenance report is written
func (s *Settings) ReportPath(root string) string {
	return filepath.Join(Resolve(root, s.OutputDir), s.ReportName)
}

// Timeout returns the per-request metadata timeout
func (h HTTPSettings) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// DownloadTimeout returns the per-request timeout for artifact downloads
func (h HTTPSettings) DownloadTimeout() time.Duration {
	return time.Duration(h.DownloadTimeoutSeconds) * time.Second
}

// BaseDelay returns the first retry delay
func (h HTTPSettings) BaseDelay() time.Duration {
	return time.Duration(h.BaseDelaySeconds) * time.Second
}

// MaxDelay returns the retry delay cap
func (h HTTPSettings) MaxDelay() time.Duration {
	return time.Duration(h.MaxDelaySeconds) * time.Second
}
