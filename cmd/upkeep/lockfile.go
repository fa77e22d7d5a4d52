package main

import (
	"github.com/spf13/cobra"

	"github.com/obentoo/upkeep/internal/common/output"
)

var lockfileCmd = &cobra.Command{
	Use:   "lockfile",
	Short: "Regenerate the devcontainer feature lockfile",
	Long: `Run "devcontainer upgrade" and record every feature whose locked
version, resolved reference or integrity changed.

Requires the devcontainer CLI (npm install -g @devcontainers/cli).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		if err := engine.UpdateLockfile(cmd.Context()); err != nil {
			if _, werr := engine.WriteReport(); werr != nil {
				output.PrintWarning("%s", errorMessage(werr))
			}
			return err
		}
		return finish(cmd, "Lockfile updates", engine)
	},
}

var lockfileBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the devcontainer to verify the lockfile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		if err := engine.BuildDevcontainer(cmd.Context()); err != nil {
			return err
		}
		output.PrintSuccess("Devcontainer built")
		return nil
	},
}

func init() {
	lockfileCmd.AddCommand(lockfileBuildCmd)
	rootCmd.AddCommand(lockfileCmd)
}
