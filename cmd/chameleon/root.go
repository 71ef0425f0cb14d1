package main

import (
	"fmt"
	"os"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chameleon",
	Short: "Chameleon is a workflow engine for human and AI workers",
	Long: `Chameleon moves units of work through a declared workflow. Workers claim
tokens by role, submit results and guards route them to the next location.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "chameleon.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every commit, routing decision and reclamation")
}

func globalOptions(cmd *cobra.Command) cli.Options {
	path, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.Options{ConfigPath: path, LogLevel: level, Debug: debug}
}
