package main

import (
	"encoding/json"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/cli"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one liveness sweep pass",
	Long:  `Reclaims tokens from unresponsive workers, times out stale queue entries and resolves blocked parents once, then prints the report as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, _, err := cli.OpenSystem(globalOptions(cmd))
		if err != nil {
			return err
		}
		defer sys.Close()

		report, err := sys.Sweeper.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
