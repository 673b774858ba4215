package engine

import (
	"sort"
	"strings"

	"github.com/mkeane/openresponses/pkg/api"
)

// streamProjector turns a sequence of provider events into the wire event
// sequence: it lazily opens the single message item on the first text
// delta, opens one function_call item per tool call on its first delta, and
// accumulates thinking text silently (it is never streamed, only inserted
// into the final output as a reasoning item). It also owns the monotonic
// sequence counter shared by every event in the response, including the
// lifecycle events the engine emits directly.
type streamProjector struct {
	seq int

	messageItemID string
	messageOpen   bool
	messageIndex  int
	textBuf       strings.Builder

	reasoningBuf  strings.Builder
	reasoningSeen bool

	nextOutputIndex int
	toolOrder       []int
	toolCalls       map[int]*toolCallState
}

type toolCallState struct {
	itemID      string
	callID      string
	name        string
	outputIndex int
	args        strings.Builder
	done        bool
}

func newStreamProjector() *streamProjector {
	return &streamProjector{toolCalls: make(map[int]*toolCallState)}
}

// NextSeq returns the next sequence number, starting at 1.
func (p *streamProjector) NextSeq() int {
	p.seq++
	return p.seq
}

// TextDelta handles an incremental text chunk. On the first non-empty delta
// it opens the message item and its sole output_text content part.
func (p *streamProjector) TextDelta(delta string) []api.StreamEvent {
	if delta == "" {
		return nil
	}

	var events []api.StreamEvent
	if !p.messageOpen {
		p.messageOpen = true
		p.messageItemID = api.NewMessageID()
		p.messageIndex = p.nextOutputIndex
		p.nextOutputIndex++

		events = append(events,
			api.StreamEvent{
				Type:           api.EventOutputItemAdded,
				SequenceNumber: p.NextSeq(),
				OutputIndex:    p.messageIndex,
				Item: &api.Item{
					ID:      p.messageItemID,
					Type:    api.ItemTypeMessage,
					Status:  api.ItemStatusInProgress,
					Message: &api.MessageData{Role: api.RoleAssistant},
				},
			},
			api.StreamEvent{
				Type:           api.EventContentPartAdded,
				SequenceNumber: p.NextSeq(),
				ItemID:         p.messageItemID,
				OutputIndex:    p.messageIndex,
				ContentIndex:   0,
				Part:           &api.OutputContentPart{Type: "output_text"},
			},
		)
	}

	p.textBuf.WriteString(delta)
	events = append(events, api.StreamEvent{
		Type:           api.EventOutputTextDelta,
		SequenceNumber: p.NextSeq(),
		ItemID:         p.messageItemID,
		OutputIndex:    p.messageIndex,
		ContentIndex:   0,
		Delta:          delta,
	})
	return events
}

// ToolCallStart opens a function_call output item on the first event seen
// for a given provider tool-call index. Later calls for the same index are
// no-ops.
func (p *streamProjector) ToolCallStart(index int, callID, name string) []api.StreamEvent {
	if _, exists := p.toolCalls[index]; exists {
		return nil
	}

	tc := &toolCallState{itemID: api.NewFunctionCallID(), callID: callID, name: name, outputIndex: p.nextOutputIndex}
	p.nextOutputIndex++
	p.toolCalls[index] = tc
	p.toolOrder = append(p.toolOrder, index)

	return []api.StreamEvent{{
		Type:           api.EventOutputItemAdded,
		SequenceNumber: p.NextSeq(),
		OutputIndex:    tc.outputIndex,
		Item: &api.Item{
			ID:           tc.itemID,
			Type:         api.ItemTypeFunctionCall,
			Status:       api.ItemStatusInProgress,
			FunctionCall: &api.FunctionCallData{Name: name, CallID: callID},
		},
	}}
}

// ToolCallDelta buffers an argument fragment. Argument deltas are never
// published to the wire — only the terminal done event carries them, whole.
func (p *streamProjector) ToolCallDelta(index int, delta string) {
	if tc, ok := p.toolCalls[index]; ok {
		tc.args.WriteString(delta)
	}
}

// ToolCallDone closes a function_call item, publishing its complete
// arguments. If the backend supplied the assembled arguments directly, that
// value wins over the locally buffered one.
func (p *streamProjector) ToolCallDone(index int, arguments string) []api.StreamEvent {
	tc, ok := p.toolCalls[index]
	if !ok {
		return nil
	}
	tc.done = true
	args := arguments
	if args == "" {
		args = tc.args.String()
	}
	tc.args.Reset()
	tc.args.WriteString(args)

	return []api.StreamEvent{{
		Type:           api.EventOutputItemDone,
		SequenceNumber: p.NextSeq(),
		OutputIndex:    tc.outputIndex,
		Item: &api.Item{
			ID:           tc.itemID,
			Type:         api.ItemTypeFunctionCall,
			Status:       api.ItemStatusCompleted,
			FunctionCall: &api.FunctionCallData{Name: tc.name, CallID: tc.callID, Arguments: args},
		},
	}}
}

// ReasoningDelta accumulates thinking text. No event is ever emitted for
// it; it surfaces only as a reasoning item at the head of the final output.
func (p *streamProjector) ReasoningDelta(delta string) {
	if delta == "" {
		return
	}
	p.reasoningSeen = true
	p.reasoningBuf.WriteString(delta)
}

// FinalizeMessage closes the open message item, if any, emitting its
// closing triad: output_text.done, content_part.done, output_item.done.
func (p *streamProjector) FinalizeMessage() []api.StreamEvent {
	if !p.messageOpen {
		return nil
	}

	text := p.textBuf.String()
	part := api.OutputContentPart{Type: "output_text", Text: text}
	item := &api.Item{
		ID:      p.messageItemID,
		Type:    api.ItemTypeMessage,
		Status:  api.ItemStatusCompleted,
		Message: &api.MessageData{Role: api.RoleAssistant, Output: []api.OutputContentPart{part}},
	}

	return []api.StreamEvent{
		{Type: api.EventOutputTextDone, SequenceNumber: p.NextSeq(), ItemID: p.messageItemID, OutputIndex: p.messageIndex, ContentIndex: 0, Text: text},
		{Type: api.EventContentPartDone, SequenceNumber: p.NextSeq(), ItemID: p.messageItemID, OutputIndex: p.messageIndex, ContentIndex: 0, Part: &part},
		{Type: api.EventOutputItemDone, SequenceNumber: p.NextSeq(), OutputIndex: p.messageIndex, Item: item},
	}
}

// Output assembles the output item list in wire order: a reasoning item
// first when any thinking was produced, then the message and function-call
// items ordered by the output_index they were first assigned. When final is
// false (a mid-stream checkpoint or a cancellation snapshot), an open
// message item is reported in_progress with whatever text has accumulated
// and tool calls that never reached their done event stay in_progress.
func (p *streamProjector) Output(final bool) []api.Item {
	var out []api.Item
	if p.reasoningSeen {
		out = append(out, api.Item{
			ID:     api.NewReasoningID(),
			Type:   api.ItemTypeReasoning,
			Status: api.ItemStatusCompleted,
			Reasoning: &api.ReasoningData{
				Summary: []api.ReasoningSummaryPart{{Type: "summary_text", Text: p.reasoningBuf.String()}},
			},
		})
	}

	type indexed struct {
		index int
		item  api.Item
	}
	var items []indexed

	if p.messageOpen {
		status := api.ItemStatusInProgress
		if final {
			status = api.ItemStatusCompleted
		}
		items = append(items, indexed{p.messageIndex, api.Item{
			ID:     p.messageItemID,
			Type:   api.ItemTypeMessage,
			Status: status,
			Message: &api.MessageData{
				Role:   api.RoleAssistant,
				Output: []api.OutputContentPart{{Type: "output_text", Text: p.textBuf.String()}},
			},
		}})
	}

	for _, idx := range p.toolOrder {
		tc := p.toolCalls[idx]
		status := api.ItemStatusInProgress
		if tc.done {
			status = api.ItemStatusCompleted
		}
		items = append(items, indexed{tc.outputIndex, api.Item{
			ID:           tc.itemID,
			Type:         api.ItemTypeFunctionCall,
			Status:       status,
			FunctionCall: &api.FunctionCallData{Name: tc.name, CallID: tc.callID, Arguments: tc.args.String()},
		}})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].index < items[j].index })
	for _, it := range items {
		out = append(out, it.item)
	}
	return out
}
