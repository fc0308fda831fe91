package provider

import "io"

// EventType tags the variant carried by an Event.
type EventType string

const (
	// EventTextDelta carries an incremental fragment of assistant text.
	EventTextDelta EventType = "text-delta"
	// EventToolCall carries one complete tool invocation. It is emitted only
	// once the model has finished streaming the call's argument JSON.
	EventToolCall EventType = "tool-call"
	// EventFinish closes the generation with a reason and token usage. At most
	// one finish event appears per stream and nothing meaningful follows it.
	EventFinish EventType = "finish"
)

// Event is one decoded unit of a streaming generation. Exactly the fields
// implied by Type are populated.
type Event struct {
	Type         EventType
	Text         string
	ToolCall     *ToolCall
	FinishReason FinishReason
	Usage        *Usage
}

// EventStream is a pull-based, single-pass iterator over generation events.
//
// Next returns io.EOF once the upstream stream ends. A stream may end without
// ever producing a finish event; callers must treat that as a valid terminal
// state.
type EventStream interface {
	Next() (*Event, error)
	io.Closer
}
