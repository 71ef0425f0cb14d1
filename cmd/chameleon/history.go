package main

import (
	"errors"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/cli"
	"github.com/spf13/cobra"
)

var errInvalid = errors.New("integrity check failed")

var historyCmd = &cobra.Command{
	Use:   "history <uow-id>",
	Short: "Show a unit of work with its history and audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, _, err := cli.OpenSystem(globalOptions(cmd))
		if err != nil {
			return err
		}
		defer sys.Close()
		return cli.ShowHistory(cmd.Context(), sys, cmd.OutOrStdout(), args[0])
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <uow-id>",
	Short: "Verify the content hash and history chain of a unit of work",
	Long:  `Recomputes the content hash and walks the history chain. Exits non-zero when either check fails.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, _, err := cli.OpenSystem(globalOptions(cmd))
		if err != nil {
			return err
		}
		defer sys.Close()
		ok, err := cli.Verify(cmd.Context(), sys, cmd.OutOrStdout(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return errInvalid
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
}
