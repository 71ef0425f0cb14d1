package main

import (
	"os"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/cli"
	"github.com/spf13/cobra"
)

// workCmd represents the work command
var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Act as a human worker from the terminal",
	Long: `Claims tokens for a role and shows each one so you can edit attributes and
submit or fail it. Type 'quit' to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, logger, err := cli.OpenSystem(globalOptions(cmd))
		if err != nil {
			return err
		}
		defer sys.Close()

		role, _ := cmd.Flags().GetString("role")
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			id, _ = os.Hostname()
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		return cli.RunWork(ctx, sys, cli.WorkOptions{
			WorkerID: id,
			Role:     role,
			Input:    os.Stdin,
			Output:   os.Stdout,
		}, logger)
	},
}

func init() {
	rootCmd.AddCommand(workCmd)
	workCmd.Flags().String("role", "", "Role to claim work for")
	workCmd.Flags().String("id", "", "Worker identity (defaults to the hostname)")
	_ = workCmd.MarkFlagRequired("role")
}
