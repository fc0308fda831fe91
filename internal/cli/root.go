// Package cli implements the claude-bridge command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "claude-bridge",
	Short: "Use Claude CLI credentials from your own tools",
	Long: `claude-bridge exposes the Anthropic Messages API through locally stored
Claude CLI OAuth credentials. It reads ~/.claude/.credentials.json, refreshes
the access token when needed, and offers single-shot and streaming generation.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config.yaml (default: $XDG_CONFIG_HOME/claude-bridge/config.yaml)")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}
