package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "MCP gateway for OpenAPI applications and MCP servers",
	Long: `Toolgate exposes registered OpenAPI applications and native MCP servers
as one MCP tool namespace.

Every OpenAPI operation becomes a tool, native MCP tools are listed under
mcp__{server}__{tool}, and each call is checked against hierarchical
access policy before it is forwarded.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "toolgate.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
