package anthropic

import (
	"fmt"
	"strings"

	"github.com/nmhq/claude-bridge/internal/json"
	"github.com/nmhq/claude-bridge/sdk/provider"
)

// defaultMaxTokens applies when the caller does not set a budget; the
// Messages API requires max_tokens on every request.
const defaultMaxTokens = 4096

// buildRequestBody converts a generic request into Messages API JSON.
func buildRequestBody(req *provider.Request) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	root := map[string]any{
		"model":      req.Model,
		"max_tokens": maxTokens,
	}

	if req.Temperature != nil {
		root["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		root["top_p"] = *req.TopP
	}
	if req.TopK != nil {
		root["top_k"] = *req.TopK
	}
	if len(req.StopSequences) > 0 {
		root["stop_sequences"] = req.StopSequences
	}

	var system []string
	if req.System != "" {
		system = append(system, req.System)
	}

	var messages []any
	for i := range req.Messages {
		msg := &req.Messages[i]
		switch msg.Role {
		case provider.RoleSystem:
			if msg.Text != "" {
				system = append(system, msg.Text)
			}
		case provider.RoleUser:
			if msg.Text != "" {
				messages = append(messages, map[string]any{
					"role":    "user",
					"content": []any{textBlock(msg.Text)},
				})
			}
		case provider.RoleAssistant:
			parts := make([]any, 0, 1+len(msg.ToolCalls))
			if msg.Text != "" {
				parts = append(parts, textBlock(msg.Text))
			}
			for _, call := range msg.ToolCalls {
				block, err := toolUseBlock(call)
				if err != nil {
					return nil, err
				}
				parts = append(parts, block)
			}
			if len(parts) > 0 {
				messages = append(messages, map[string]any{"role": "assistant", "content": parts})
			}
		case provider.RoleTool:
			// Tool results travel back to the model as user content blocks.
			parts := make([]any, 0, len(msg.ToolResults))
			for _, result := range msg.ToolResults {
				block := map[string]any{
					"type":        "tool_result",
					"tool_use_id": result.ToolCallID,
					"content":     result.Content,
				}
				if result.IsError {
					block["is_error"] = true
				}
				parts = append(parts, block)
			}
			if len(parts) > 0 {
				messages = append(messages, map[string]any{"role": "user", "content": parts})
			}
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", msg.Role)
		}
	}
	root["messages"] = messages

	if len(system) > 0 {
		root["system"] = strings.Join(system, "\n\n")
	}

	if len(req.Tools) > 0 {
		tools := make([]any, 0, len(req.Tools))
		for _, tool := range req.Tools {
			schema := tool.InputSchema
			if schema == nil {
				schema = map[string]any{"type": "object"}
			}
			tools = append(tools, map[string]any{
				"name":         tool.Name,
				"description":  tool.Description,
				"input_schema": schema,
			})
		}
		root["tools"] = tools

		if req.ToolChoice != nil {
			choice := map[string]any{"type": string(req.ToolChoice.Mode)}
			if req.ToolChoice.Mode == provider.ToolChoiceTool {
				choice["name"] = req.ToolChoice.Name
			}
			root["tool_choice"] = choice
		}
	}

	return json.Marshal(root)
}

func textBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

func toolUseBlock(call provider.ToolCall) (map[string]any, error) {
	var input any = map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
			return nil, fmt.Errorf("anthropic: tool call %s has invalid argument JSON: %w", call.ID, err)
		}
	}
	return map[string]any{
		"type":  "tool_use",
		"id":    call.ID,
		"name":  call.Name,
		"input": input,
	}, nil
}

// mapStopReason translates a wire stop_reason to the generic finish reason.
func mapStopReason(reason string) provider.FinishReason {
	switch reason {
	case "end_turn":
		return provider.FinishReasonStop
	case "tool_use":
		return provider.FinishReasonToolCalls
	case "max_tokens":
		return provider.FinishReasonLength
	default:
		return provider.FinishReasonOther
	}
}
