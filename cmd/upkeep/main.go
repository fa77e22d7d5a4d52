package main

import (
	"errors"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/obentoo/upkeep/internal/common/config"
	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/common/output"
	"github.com/obentoo/upkeep/internal/maintenance"
)

var (
	configFile string
	repoRoot   string
	logFile    string
	verbose    bool
	quiet      bool
	noColor    bool

	// settings is populated by the root PersistentPreRunE
	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "upkeep",
	Short: "Keep pinned dependency versions current",
	Long: `Upkeep refreshes the dependency versions pinned across a repository:
GitHub Actions references in workflows, tool versions and checksums in
download manifests, and the devcontainer feature lockfile. Every change is
recorded in a JSON maintenance report.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Default().Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&repoRoot, "repo", "", "Repository root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

func setup(cmd *cobra.Command, args []string) error {
	if noColor {
		output.NoColor()
	}

	v := viper.New()
	if err := v.BindPFlag("repo_root", cmd.Flags().Lookup("repo")); err != nil {
		return err
	}
	s, err := config.Load(v, configFile)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to load configuration").
			WithCause(err)
	}
	settings = s

	level, err := logger.ParseLevel(s.LogLevel)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid log_level").
			WithCause(err)
	}
	logger.Default().SetOutput(cmd.ErrOrStderr())
	logger.Default().SetLevel(level)
	logger.SetVerbose(verbose)
	logger.SetQuiet(quiet)

	if logFile != "" {
		if err := logger.Default().EnableFileLogging(logFile); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("cannot open log file").
				WithCause(err)
		}
	}
	return nil
}

// newEngine builds the maintenance engine from the loaded settings
func newEngine() (*maintenance.Engine, error) {
	return maintenance.New(settings)
}

func exitCodeForError(err error) int {
	switch errbuilder.CodeOf(err) {
	case errbuilder.CodeInvalidArgument, errbuilder.CodeAlreadyExists:
		return 2
	case errbuilder.CodeNotFound:
		return 3
	case errbuilder.CodeFailedPrecondition:
		return 4
	default:
		return 1
	}
}

func errorMessage(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Debug("%v", err)
		output.PrintError("%s", errorMessage(err))
		os.Exit(exitCodeForError(err))
	}
}
