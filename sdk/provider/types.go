// Package provider defines the vendor-neutral language model contract exposed
// by claude-bridge. Callers build a Request, hand it to a LanguageModel, and
// consume either a single Response or a stream of Events.
package provider

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// FinishReason explains why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool-calls"
	FinishReasonLength    FinishReason = "length"
	FinishReasonOther     FinishReason = "other"
)

// Usage holds token accounting for one generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ToolCall is a request from the model to invoke a declared tool.
// Arguments is the raw JSON argument document exactly as the model produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolResult carries the outcome of a previously issued tool call back to the
// model on the next turn.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Tool declares a callable tool to the model.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolChoiceMode directs how the model may use declared tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceTool ToolChoiceMode = "tool"
	ToolChoiceNone ToolChoiceMode = "none"
)

// ToolChoice selects a tool usage mode. Name is only consulted when Mode is
// ToolChoiceTool.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// Message is one turn of a conversation. Assistant turns may carry tool calls,
// tool turns carry results; all other turns are plain text.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Request describes one generation call.
type Request struct {
	Model         string
	System        string
	Messages      []Message
	MaxTokens     int
	Temperature   *float64
	TopP          *float64
	TopK          *int
	StopSequences []string
	Tools         []Tool
	ToolChoice    *ToolChoice
}

// Response is the result of a non-streaming generation.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        Usage
}

// LanguageModel is the generic model interface implemented by the bridge.
type LanguageModel interface {
	// Generate performs a single-shot call and returns the complete result.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Stream starts a streaming call. The returned stream must be drained or
	// closed by the caller; abandoning it leaks the underlying connection.
	Stream(ctx context.Context, req *Request) (EventStream, error)
}
