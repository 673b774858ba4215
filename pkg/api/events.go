package api

import "strings"

// StreamEventType identifies the type of a streaming event.
type StreamEventType string

// Delta events are emitted during streaming to convey incremental content.
// Function-call arguments are never streamed incrementally on the wire —
// only the terminal response.output_item.done carries the full arguments —
// so there is deliberately no function_call_arguments.delta/done pair here.
const (
	EventOutputItemAdded  StreamEventType = "response.output_item.added"
	EventContentPartAdded StreamEventType = "response.content_part.added"
	EventOutputTextDelta  StreamEventType = "response.output_text.delta"
	EventOutputTextDone   StreamEventType = "response.output_text.done"
	EventContentPartDone  StreamEventType = "response.content_part.done"
	EventOutputItemDone   StreamEventType = "response.output_item.done"
)

// State machine events track the lifecycle of a response.
const (
	EventResponseInProgress StreamEventType = "response.in_progress"
	EventResponseCompleted  StreamEventType = "response.completed"
	EventResponseFailed     StreamEventType = "response.failed"
)

// EventError is the type value of the top-level "error" SSE event, emitted
// on any non-abort error encountered after streaming has started.
const EventError StreamEventType = "error"

// StreamEvent represents a single server-sent event in a streaming response.
type StreamEvent struct {
	Type           StreamEventType    `json:"type"`
	SequenceNumber int                `json:"sequence_number"`
	Response       *Response          `json:"response,omitempty"`
	Item           *Item              `json:"item,omitempty"`
	Part           *OutputContentPart `json:"part,omitempty"`
	Delta          string             `json:"delta,omitempty"`
	Text           string             `json:"text,omitempty"`
	ItemID         string             `json:"item_id,omitempty"`
	OutputIndex    int                `json:"output_index,omitempty"`
	ContentIndex   int                `json:"content_index,omitempty"`
	Error          *StreamError       `json:"error,omitempty"`
}

// StreamError is the payload of the top-level "error" SSE event.
type StreamError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    *string   `json:"code"`
}

// IsExtensionEvent returns true if the event type follows the "provider:event_type"
// pattern used for provider-specific extension events.
func IsExtensionEvent(t StreamEventType) bool {
	return strings.Contains(string(t), ":")
}
