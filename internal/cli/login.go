package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nmhq/claude-bridge/internal/bootstrap"
	"github.com/nmhq/claude-bridge/internal/browser"
	log "github.com/nmhq/claude-bridge/internal/logging"
	"github.com/nmhq/claude-bridge/internal/oauth"
	"github.com/nmhq/claude-bridge/internal/oauth/pkce"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with your Anthropic account",
	Long: `Sign in to Claude using OAuth.

A browser window opens for you to authorize access; the resulting tokens are
written to the credential file shared with the Claude CLI. Use --no-browser
to print the URL instead (tunnel the callback port when on a remote host).`,
	RunE: func(c *cobra.Command, args []string) error {
		configPath, _ := c.Flags().GetString("config")
		noBrowser, _ := c.Flags().GetBool("no-browser")

		result, err := bootstrap.Bootstrap(configPath)
		if err != nil {
			return err
		}
		defer result.Close()

		codes, err := pkce.Generate()
		if err != nil {
			return err
		}
		state, err := oauth.GenerateState()
		if err != nil {
			return err
		}
		authURL := oauth.BuildAuthorizeURL(state, codes.Challenge)

		if noBrowser || !browser.IsAvailable() {
			fmt.Printf("Visit the following URL to sign in:\n%s\n\n", authURL)
			fmt.Printf("On a remote host, forward the callback first:\n  ssh -L %d:localhost:%d <host>\n", oauth.CallbackPort, oauth.CallbackPort)
		} else {
			fmt.Println("Opening browser for Claude authentication")
			if err := browser.OpenURL(authURL); err != nil {
				log.Warnf("failed to open browser: %v", err)
				fmt.Printf("Visit the following URL to sign in:\n%s\n", authURL)
			}
		}

		fmt.Println("Waiting for authentication callback...")
		callback, err := oauth.WaitForCallback(c.Context(), state, 5*time.Minute)
		if err != nil {
			return err
		}

		rec, err := oauth.ExchangeCode(c.Context(), result.Config.TokenURL, callback.Code, callback.State, codes.Verifier)
		if err != nil {
			return err
		}
		if err := result.Manager.Store().Write(rec); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}

		fmt.Println("Authentication successful")
		fmt.Printf("Credentials saved to %s\n", result.Manager.Store().Path())
		return nil
	},
}

func init() {
	loginCmd.Flags().Bool("no-browser", false, "print the login URL instead of opening a browser")
	rootCmd.AddCommand(loginCmd)
}
