package main

import (
	"fmt"
	"strings"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/cli"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and workflow for consistency",
	Long:  `Loads the configuration, then walks the workflow and reports missing destinations or locations that cannot reach a terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(globalOptions(cmd))
		if err != nil {
			return err
		}
		wf := cfg.WorkflowDefinition()
		if err := validator.Check(wf); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		report := validator.Analyze(wf)
		fmt.Fprintf(cmd.OutOrStdout(), "Workflow %q is valid! ✅\nEntry points: %s\n", wf.Name, strings.Join(report.EntryPoints, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
