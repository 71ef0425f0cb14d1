package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/cli"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the engine as an MCP Server so AI agents can act as workers through tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.

The liveness sweep runs alongside either transport.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, logger, err := cli.OpenSystem(globalOptions(cmd))
		if err != nil {
			return err
		}
		defer sys.Close()

		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		baseURL, _ := cmd.Flags().GetString("base-url")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		sweepDone := cli.RunSweeper(ctx, sys, logger)
		defer func() {
			ctx.Cancel()
			<-sweepDone
		}()

		srv := sys.MCPServer()
		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("Starting Chameleon MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			logger.Info("Starting Chameleon MCP Server (SSE)", "addr", addr)
			if err := srv.ServeSSE(ctx, addr, baseURL); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", ":8081", "Address to listen on (only for SSE)")
	mcpCmd.Flags().String("base-url", "", "Public base URL advertised to SSE clients")
}
