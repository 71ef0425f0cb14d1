package main

import (
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the liveness sweep",
	Long:  `Exposes the engine as a JSON API over HTTP and runs the liveness sweep until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, logger, err := cli.OpenSystem(globalOptions(cmd))
		if err != nil {
			return err
		}
		defer sys.Close()

		addr := sys.Config.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		err = cli.Serve(ctx, sys, addr, logger)
		if sig := ctx.Signal(); sig != nil {
			logger.Info("Stopped by signal", "signal", sig)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on (overrides server.addr)")
}
