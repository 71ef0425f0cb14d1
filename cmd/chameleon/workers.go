package main

import (
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/cli"
	"github.com/spf13/cobra"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "Run external commands as automated workers",
	Long: `Loads worker definitions (id, role, command, args, env) from a YAML or JSON file
and runs each one in a claim loop. Every claimed token is passed to the command as JSON
on stdin; its stdout is the result. The liveness sweep runs alongside.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, logger, err := cli.OpenSystem(globalOptions(cmd))
		if err != nil {
			return err
		}
		defer sys.Close()

		file, _ := cmd.Flags().GetString("file")
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		sweepDone := cli.RunSweeper(ctx, sys, logger)
		err = cli.RunProcessWorkers(ctx, sys, file, logger)
		ctx.Cancel()
		<-sweepDone
		return err
	},
}

func init() {
	rootCmd.AddCommand(workersCmd)
	workersCmd.Flags().String("file", "workers.yaml", "Worker definitions (YAML or JSON)")
}
