package main

import (
	"github.com/spf13/cobra"

	"github.com/obentoo/upkeep/internal/common/output"
	"github.com/obentoo/upkeep/internal/maintenance"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every maintenance task",
	Long: `Update workflow action references, download manifests and the
devcontainer lockfile, look up Homebrew versions, run the post-processing
hooks and write the maintenance report.

Examples:
  upkeep run                  Maintain the repository in the current directory
  upkeep run --repo ../infra  Maintain another checkout`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		res, runErr := engine.Run(cmd.Context())
		printSummary(cmd, "Maintenance summary", engine)
		if runErr != nil {
			return runErr
		}
		printHomebrew(res.Homebrew)
		output.PrintSuccess("Report written to %s", res.ReportPath)
		return nil
	},
}

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Update GitHub Actions references in workflow files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		if _, err := engine.UpdateWorkflows(cmd.Context()); err != nil {
			output.PrintWarning("Workflow updates incomplete: %v", err)
		}
		return finish(cmd, "Workflow updates", engine)
	},
}

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Update tool versions and checksums in download manifests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		engine.UpdateDownloads(cmd.Context())
		return finish(cmd, "Download updates", engine)
	},
}

var homebrewCmd = &cobra.Command{
	Use:   "homebrew",
	Short: "Look up the current version of every Homebrew entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := newEngine()
		if err != nil {
			return err
		}
		printHomebrew(engine.HomebrewVersions(cmd.Context()))
		_, err = engine.WriteReport()
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(downloadsCmd)
	rootCmd.AddCommand(homebrewCmd)
}

// finish prints the summary and writes the report
func finish(cmd *cobra.Command, title string, engine *maintenance.Engine) error {
	printSummary(cmd, title, engine)
	path, err := engine.WriteReport()
	if err != nil {
		return err
	}
	output.PrintSuccess("Report written to %s", path)
	return nil
}

func printSummary(cmd *cobra.Command, title string, engine *maintenance.Engine) {
	if quiet {
		return
	}
	output.PrintSummary(cmd.OutOrStdout(), title, maintenance.SummaryRows(engine.Report()))
}

func printHomebrew(versions []maintenance.HomebrewVersion) {
	if quiet {
		return
	}
	for _, hv := range versions {
		switch {
		case hv.Version != "":
			output.PrintInfo("%s (%s %s): %s", hv.Identifier, hv.Type, hv.Formula, hv.Version)
		default:
			output.PrintWarning("%s (%s %s): unknown", hv.Identifier, hv.Type, hv.Formula)
		}
	}
}
