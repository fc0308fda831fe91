package anthropic

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nmhq/claude-bridge/internal/sseutil"
	"github.com/nmhq/claude-bridge/internal/streamutil"
	"github.com/nmhq/claude-bridge/sdk/provider"
)

// Scanner sizing for SSE bodies. Individual frames stay small, but tool
// argument deltas have no documented upper bound.
const (
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 2 * 1024 * 1024
)

// openToolCall accumulates the argument fragments of the one tool invocation
// that may be open at a time.
type openToolCall struct {
	id   string
	name string
	args strings.Builder
}

// EventStream decodes a server-sent-event byte stream into generation events.
//
// It is a single-pass, forward-only iterator: Next blocks until the upstream
// delivers enough bytes for the next event, returns events in exactly the
// order their frames arrived, and returns io.EOF once the stream ends. Frames
// that are not `data:` lines, carry the [DONE] sentinel, fail to parse as
// JSON, or declare an unknown kind are skipped without aborting the stream.
type EventStream struct {
	ctx     context.Context
	body    *streamutil.CancelReader
	scanner *bufio.Scanner

	inputTokens  int
	outputTokens int
	openTool     *openToolCall
	finishSent   bool
	done         bool
}

// NewEventStream wraps body. Cancelling ctx closes the body and unblocks a
// pending Next. The caller must drain the stream or call Close.
func NewEventStream(ctx context.Context, body io.ReadCloser) *EventStream {
	return newEventStream(ctx, body, 0)
}

func newEventStream(ctx context.Context, body io.ReadCloser, idleTimeout time.Duration) *EventStream {
	reader := streamutil.NewCancelReader(ctx, body, idleTimeout, "anthropic stream")
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, scannerInitialBuffer), scannerMaxBuffer)
	return &EventStream{ctx: ctx, body: reader, scanner: scanner}
}

// Next returns the next generation event. It returns io.EOF when the upstream
// stream ends; a stream may legally end without ever producing a finish
// event. After io.EOF or any other error the stream is closed.
func (s *EventStream) Next() (*provider.Event, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		if event := s.decodeLine(s.scanner.Bytes()); event != nil {
			return event, nil
		}
	}

	s.done = true
	_ = s.body.Close()

	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close releases the underlying body. Safe to call at any point, including
// mid-stream on abort.
func (s *EventStream) Close() error {
	s.done = true
	return s.body.Close()
}

// Usage returns the token counts observed so far. Prompt tokens appear once
// the message-start frame has been decoded; completion tokens once the
// message-delta frame has.
func (s *EventStream) Usage() provider.Usage {
	return provider.Usage{PromptTokens: s.inputTokens, CompletionTokens: s.outputTokens}
}

// FinishSeen reports whether a finish event has been emitted.
func (s *EventStream) FinishSeen() bool { return s.finishSent }

// decodeLine maps one SSE line to at most one generation event. Lines that
// carry only internal state transitions return nil.
func (s *EventStream) decodeLine(line []byte) *provider.Event {
	payload := sseutil.Payload(line)
	if payload == nil || !gjson.ValidBytes(payload) {
		return nil
	}

	frame := gjson.ParseBytes(payload)
	switch frame.Get("type").String() {
	case "message_start":
		if tokens := frame.Get("message.usage.input_tokens"); tokens.Exists() {
			s.inputTokens = int(tokens.Int())
		}

	case "content_block_start":
		block := frame.Get("content_block")
		if block.Get("type").String() == "tool_use" {
			s.openTool = &openToolCall{
				id:   block.Get("id").String(),
				name: block.Get("name").String(),
			}
		}

	case "content_block_delta":
		delta := frame.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			// Text is forwarded as soon as it decodes; only tool arguments
			// are buffered.
			return &provider.Event{Type: provider.EventTextDelta, Text: delta.Get("text").String()}
		case "input_json_delta":
			if s.openTool != nil {
				s.openTool.args.WriteString(delta.Get("partial_json").String())
			}
		}

	case "content_block_stop":
		if s.openTool != nil {
			call := &provider.ToolCall{
				ID:        s.openTool.id,
				Name:      s.openTool.name,
				Arguments: s.openTool.args.String(),
			}
			s.openTool = nil
			return &provider.Event{Type: provider.EventToolCall, ToolCall: call}
		}

	case "message_delta":
		if tokens := frame.Get("usage.output_tokens"); tokens.Exists() {
			s.outputTokens = int(tokens.Int())
		}
		if !s.finishSent {
			s.finishSent = true
			usage := s.Usage()
			return &provider.Event{
				Type:         provider.EventFinish,
				FinishReason: mapStopReason(frame.Get("delta.stop_reason").String()),
				Usage:        &usage,
			}
		}
	}

	return nil
}
