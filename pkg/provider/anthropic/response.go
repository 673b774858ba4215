package anthropic

import (
	"github.com/mkeane/openresponses/pkg/api"
	"github.com/mkeane/openresponses/pkg/provider"
)

// TranslateResponse converts a MessagesResponse into a ProviderResponse,
// mapping each content block to its own Item: text blocks become a single
// assistant message Item aggregating all text blocks, and each tool_use
// block becomes its own function_call Item.
func TranslateResponse(resp *MessagesResponse) *provider.ProviderResponse {
	pr := &provider.ProviderResponse{
		Model:  resp.Model,
		Status: MapStopReason(resp.StopReason),
		Usage: api.Usage{
			InputTokens:  resp.Usage.InputTokens + resp.Usage.CacheReadInputTokens + resp.Usage.CacheCreationInputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.CacheReadInputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.OutputTokens,
		},
	}

	var text string
	var thinking string
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			text += b.Text
		case "thinking":
			thinking += b.Thinking
		case "tool_use":
			pr.Items = append(pr.Items, api.Item{
				ID:     api.NewFunctionCallID(),
				Type:   api.ItemTypeFunctionCall,
				Status: api.ItemStatusCompleted,
				FunctionCall: &api.FunctionCallData{
					Name:      b.Name,
					CallID:    b.ID,
					Arguments: string(b.Input),
				},
			})
		}
	}

	if thinking != "" {
		pr.Items = append([]api.Item{{
			ID:     api.NewReasoningID(),
			Type:   api.ItemTypeReasoning,
			Status: api.ItemStatusCompleted,
			Reasoning: &api.ReasoningData{
				Summary: []api.ReasoningSummaryPart{{Type: "summary_text", Text: thinking}},
			},
		}}, pr.Items...)
	}

	if text != "" {
		pr.Items = append(pr.Items, api.Item{
			ID:     api.NewMessageID(),
			Type:   api.ItemTypeMessage,
			Status: api.ItemStatusCompleted,
			Message: &api.MessageData{
				Role: api.RoleAssistant,
				Output: []api.OutputContentPart{
					{Type: "output_text", Text: text},
				},
			},
		})
	}

	return pr
}

// MapStopReason converts an Anthropic stop_reason to a ResponseStatus.
func MapStopReason(reason string) api.ResponseStatus {
	switch reason {
	case "end_turn", "stop_sequence", "tool_use":
		return api.ResponseStatusCompleted
	case "max_tokens":
		return api.ResponseStatusIncomplete
	default:
		return api.ResponseStatusCompleted
	}
}

// MapStopReasonToItemStatus converts an Anthropic stop_reason to an Item
// status, used to finalize the last streamed item.
func MapStopReasonToItemStatus(reason string) api.ItemStatus {
	switch reason {
	case "max_tokens":
		return api.ItemStatusIncomplete
	default:
		return api.ItemStatusCompleted
	}
}
