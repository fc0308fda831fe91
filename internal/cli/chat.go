package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nmhq/claude-bridge/internal/anthropic"
	"github.com/nmhq/claude-bridge/internal/bootstrap"
	log "github.com/nmhq/claude-bridge/internal/logging"
	"github.com/nmhq/claude-bridge/internal/usage"
	"github.com/nmhq/claude-bridge/sdk/provider"
)

const defaultModel = "claude-sonnet-4-20250514"

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a prompt to Claude",
	Long: `Send a single prompt and print the response. Reads the prompt from stdin
when no argument is given. --stream prints text incrementally as it arrives.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		configPath, _ := c.Flags().GetString("config")
		model, _ := c.Flags().GetString("model")
		system, _ := c.Flags().GetString("system")
		maxTokens, _ := c.Flags().GetInt("max-tokens")
		streaming, _ := c.Flags().GetBool("stream")

		prompt, err := readPrompt(args)
		if err != nil {
			return err
		}

		result, err := bootstrap.Bootstrap(configPath)
		if err != nil {
			return err
		}
		defer result.Close()

		client := anthropic.NewClient(result.Manager, anthropic.ClientConfig{
			BaseURL:        result.Config.APIBaseURL,
			RequestTimeout: result.Config.RequestTimeout(),
		})

		if result.Config.UsageEnabled() {
			recorder, err := usage.NewRecorder(result.Config.UsageDatabasePath())
			if err != nil {
				log.Warnf("usage recording disabled: %v", err)
			} else {
				defer func() { _ = recorder.Close() }()
				client.SetUsageObserver(recorder)
			}
		}

		req := &provider.Request{
			Model:     model,
			System:    system,
			MaxTokens: maxTokens,
			Messages: []provider.Message{
				{Role: provider.RoleUser, Text: prompt},
			},
		}

		if streaming {
			return streamChat(c, client, req)
		}

		resp, err := client.Generate(c.Context(), req)
		if err != nil {
			return err
		}
		fmt.Println(resp.Text)
		for _, call := range resp.ToolCalls {
			fmt.Printf("[tool call] %s(%s)\n", call.Name, call.Arguments)
		}
		log.Debugf("chat: finish=%s prompt=%d completion=%d",
			resp.FinishReason, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		return nil
	},
}

func streamChat(c *cobra.Command, client *anthropic.Client, req *provider.Request) error {
	stream, err := client.Stream(c.Context(), req)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	for {
		event, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return err
		}
		switch event.Type {
		case provider.EventTextDelta:
			fmt.Print(event.Text)
		case provider.EventToolCall:
			fmt.Printf("\n[tool call] %s(%s)\n", event.ToolCall.Name, event.ToolCall.Arguments)
		case provider.EventFinish:
			log.Debugf("chat: finish=%s prompt=%d completion=%d",
				event.FinishReason, event.Usage.PromptTokens, event.Usage.CompletionTokens)
		}
	}
}

func readPrompt(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}

func init() {
	chatCmd.Flags().String("model", defaultModel, "model identifier")
	chatCmd.Flags().String("system", "", "system prompt")
	chatCmd.Flags().Int("max-tokens", 0, "completion token budget")
	chatCmd.Flags().Bool("stream", false, "stream the response incrementally")
	rootCmd.AddCommand(chatCmd)
}
