package main

import (
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/cli"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the workflow graph visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) of the workflow. With --uow the path taken by that unit of work is highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, _, err := cli.OpenSystem(globalOptions(cmd))
		if err != nil {
			return err
		}
		defer sys.Close()

		uowID, _ := cmd.Flags().GetString("uow")
		return cli.Graph(cmd.Context(), sys, cmd.OutOrStdout(), uowID)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("uow", "", "Unit of work whose path to highlight")
}
