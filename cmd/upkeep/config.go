package main

import (
	"os"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"

	"github.com/obentoo/upkeep/internal/common/config"
	"github.com/obentoo/upkeep/internal/common/output"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage upkeep configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the effective settings",
	Long: `Write the effective settings (defaults, config file, UPKEEP_*
environment and flags) as YAML. The default path is ./upkeep.yaml.
The GitHub token is never written.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "upkeep.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return errbuilder.New().
				WithCode(errbuilder.CodeAlreadyExists).
				WithMsg(path + " already exists; use --force to overwrite")
		}

		s := config.Defaults()
		if settings != nil {
			s = *settings
		}
		// credentials stay in the environment
		s.GitHub.Token = ""
		if err := s.SaveTo(path); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to write " + path).
				WithCause(err)
		}
		output.PrintSuccess("Wrote %s", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
