package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nmhq/claude-bridge/internal/bootstrap"
	log "github.com/nmhq/claude-bridge/internal/logging"
	"github.com/nmhq/claude-bridge/internal/usage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential and usage status",
	RunE: func(c *cobra.Command, args []string) error {
		configPath, _ := c.Flags().GetString("config")

		result, err := bootstrap.Bootstrap(configPath)
		if err != nil {
			return err
		}
		defer result.Close()

		rec, err := result.Manager.ReadCredentials(c.Context())
		if err != nil {
			return err
		}

		expiry := rec.ExpiresAtTime()
		fmt.Printf("Credentials:   %s\n", result.Manager.Store().Path())
		fmt.Printf("Token expires: %s (%s)\n", expiry.Format(time.RFC3339), expiryHint(expiry))
		if len(rec.Scopes) > 0 {
			fmt.Printf("Scopes:        %s\n", strings.Join(rec.Scopes, ", "))
		}
		if rec.SubscriptionType != "" {
			fmt.Printf("Subscription:  %s\n", rec.SubscriptionType)
		}
		if rec.RateLimitTier != "" {
			fmt.Printf("Rate tier:     %s\n", rec.RateLimitTier)
		}

		if result.Config.UsageEnabled() {
			recorder, err := usage.NewRecorder(result.Config.UsageDatabasePath())
			if err != nil {
				log.Warnf("usage database unavailable: %v", err)
				return nil
			}
			defer func() { _ = recorder.Close() }()

			totals, err := recorder.TotalsSince(c.Context(), time.Now().AddDate(0, 0, -30))
			if err != nil {
				log.Warnf("usage totals unavailable: %v", err)
				return nil
			}
			fmt.Printf("Last 30 days:  %d generations, %d prompt + %d completion tokens\n",
				totals.Generations, totals.PromptTokens, totals.CompletionTokens)
		}
		return nil
	},
}

func expiryHint(expiry time.Time) string {
	remaining := time.Until(expiry)
	if remaining <= 0 {
		return "expired"
	}
	return "in " + remaining.Round(time.Minute).String()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
