package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nmhq/claude-bridge/internal/bootstrap"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a valid access token",
	Long: `Print a currently valid access token to stdout, refreshing it first if it
is expired or about to expire. Useful for scripting direct API calls.`,
	RunE: func(c *cobra.Command, args []string) error {
		configPath, _ := c.Flags().GetString("config")

		result, err := bootstrap.Bootstrap(configPath)
		if err != nil {
			return err
		}
		defer result.Close()

		token, err := result.Manager.AccessToken(c.Context())
		if err != nil {
			return err
		}

		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
