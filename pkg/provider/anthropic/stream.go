package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/mkeane/openresponses/pkg/api"
	"github.com/mkeane/openresponses/pkg/provider"
)

// blockState tracks the content block open at a given index so that a
// content_block_delta event (which carries only an index) can be routed to
// the right ProviderEvent type and, for tool_use blocks, have its
// partial_json fragments assembled into complete arguments.
type blockState struct {
	blockType string
	toolID    string
	toolName  string
	args      strings.Builder
}

// ParseSSEStream reads Anthropic Messages API SSE events from body,
// translates each into ProviderEvent values, and sends them on ch. Unlike
// the Chat Completions wire format, events are named ("event: content_block_delta")
// with the payload on the following "data:" line, and there is no [DONE]
// sentinel — the stream simply ends after message_stop.
//
// The channel is not closed by this function; the caller closes it.
func ParseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.ProviderEvent) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	blocks := make(map[int]*blockState)
	var eventName string

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
			continue

		case strings.HasPrefix(line, "data: "):
			payload := strings.TrimPrefix(line, "data: ")
			handleEvent(eventName, payload, blocks, ch)
			eventName = ""

		default:
			// Blank lines and ":"-prefixed pings between events are ignored.
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		ch <- provider.ProviderEvent{
			Type: provider.ProviderEventError,
			Err:  api.NewServerError("SSE stream read error: " + err.Error()),
		}
	}
}

func handleEvent(eventName, payload string, blocks map[int]*blockState, ch chan<- provider.ProviderEvent) {
	var evt StreamEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		slog.Warn("skipping malformed Anthropic SSE event",
			"error", err.Error(),
			"event", eventName,
			"data", truncate(payload, 200),
		)
		return
	}
	if evt.Type == "" {
		evt.Type = eventName
	}

	switch evt.Type {
	case "message_start":
		// Nothing to emit yet; usage totals arrive on message_delta/message_stop.

	case "content_block_start":
		if evt.ContentBlock == nil {
			return
		}
		st := &blockState{blockType: evt.ContentBlock.Type, toolID: evt.ContentBlock.ID, toolName: evt.ContentBlock.Name}
		blocks[evt.Index] = st
		if st.blockType == "tool_use" {
			ch <- provider.ProviderEvent{
				Type:          provider.ProviderEventToolCallDelta,
				ToolCallIndex: evt.Index,
				ToolCallID:    st.toolID,
				FunctionName:  st.toolName,
			}
		}

	case "content_block_delta":
		st := blocks[evt.Index]
		if st == nil || evt.Delta == nil {
			return
		}
		switch evt.Delta.Type {
		case "text_delta":
			ch <- provider.ProviderEvent{Type: provider.ProviderEventTextDelta, Delta: evt.Delta.Text}
		case "thinking_delta":
			ch <- provider.ProviderEvent{Type: provider.ProviderEventReasoningDelta, Delta: evt.Delta.Thinking}
		case "input_json_delta":
			st.args.WriteString(evt.Delta.PartialJSON)
			ch <- provider.ProviderEvent{
				Type:          provider.ProviderEventToolCallDelta,
				ToolCallIndex: evt.Index,
				ToolCallID:    st.toolID,
				Delta:         evt.Delta.PartialJSON,
			}
		}

	case "content_block_stop":
		st := blocks[evt.Index]
		if st == nil {
			return
		}
		switch st.blockType {
		case "text":
			ch <- provider.ProviderEvent{Type: provider.ProviderEventTextDone}
		case "thinking":
			ch <- provider.ProviderEvent{Type: provider.ProviderEventReasoningDone}
		case "tool_use":
			args := st.args.String()
			if args == "" {
				args = "{}"
			}
			ch <- provider.ProviderEvent{
				Type:          provider.ProviderEventToolCallDone,
				ToolCallIndex: evt.Index,
				ToolCallID:    st.toolID,
				FunctionName:  st.toolName,
				Delta:         args,
				Item: &api.Item{
					Type:   api.ItemTypeFunctionCall,
					Status: api.ItemStatusCompleted,
					FunctionCall: &api.FunctionCallData{
						Name:      st.toolName,
						CallID:    st.toolID,
						Arguments: args,
					},
				},
			}
		}
		delete(blocks, evt.Index)

	case "message_delta":
		var usage *api.Usage
		if evt.Usage != nil {
			usage = &api.Usage{
				OutputTokens: evt.Usage.OutputTokens,
				InputTokens:  evt.Usage.InputTokens,
				TotalTokens:  evt.Usage.InputTokens + evt.Usage.OutputTokens,
			}
		}
		status := api.ItemStatusCompleted
		if evt.Delta != nil {
			status = MapStopReasonToItemStatus(evt.Delta.StopReason)
		}
		ch <- provider.ProviderEvent{
			Type:  provider.ProviderEventDone,
			Item:  &api.Item{Status: status},
			Usage: usage,
		}

	case "message_stop":
		// The terminal status was already emitted on message_delta.

	case "ping":
		// Keepalive, nothing to translate.

	case "error":
		msg := "backend stream error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		ch <- provider.ProviderEvent{Type: provider.ProviderEventError, Err: api.NewServerError(msg)}

	default:
		slog.Warn("unhandled Anthropic SSE event type", "event", evt.Type)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
