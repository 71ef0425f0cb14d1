package main

import (
	"fmt"
	"strings"

	chameleon "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of chameleon",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chameleon version %s\n", strings.TrimSpace(chameleon.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
