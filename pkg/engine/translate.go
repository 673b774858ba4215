package engine

import (
	"fmt"
	"strings"

	"github.com/mkeane/openresponses/pkg/api"
	"github.com/mkeane/openresponses/pkg/provider"
)

// translateRequest converts an OpenResponses CreateResponseRequest, with its
// input already resolved by resolveInputItems, into a provider-level
// ProviderRequest suitable for backend invocation.
func translateRequest(req *api.CreateResponseRequest, items []api.Item) *provider.ProviderRequest {
	pr := &provider.ProviderRequest{
		Model:            req.Model,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxTokens:        req.MaxOutputTokens,
		Stream:           req.Stream,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		TopLogprobs:      req.TopLogprobs,
		User:             req.User,
	}

	if req.ToolChoice != nil {
		pr.ToolChoice = req.ToolChoice
	}

	// text.format doesn't map onto any ProviderRequest field; forward it
	// through Extra for providers that know how to use it.
	if req.Text != nil && req.Text.Format != nil && req.Text.Format.Type != "text" {
		pr.Extra = setExtra(pr.Extra, "text_format", req.Text.Format)
	}

	if req.Reasoning != nil && req.Reasoning.Effort != nil {
		if budget := api.ReasoningEffortToTokenBudget(*req.Reasoning.Effort); budget > 0 {
			pr.Extra = setExtra(pr.Extra, "reasoning_budget_tokens", budget)
		}
	}

	// Instructions and every system/developer message item join into a
	// single leading system message; instructions come first.
	var system []string
	if req.Instructions != "" {
		system = append(system, req.Instructions)
	}

	var lastAssistant *provider.ProviderMessage

	for _, item := range items {
		switch item.Type {
		case api.ItemTypeMessage:
			if item.Message == nil {
				continue
			}
			if item.Message.Role == api.RoleSystem || item.Message.Role == api.RoleDeveloper {
				if text := extractUserText(item.Message.Content); text != "" {
					system = append(system, text)
				}
				continue
			}
			msg := translateMessageItem(item)
			pr.Messages = append(pr.Messages, msg)
			lastAssistant = nil

		case api.ItemTypeFunctionCall:
			if item.FunctionCall == nil {
				continue
			}
			call := provider.ProviderToolCall{
				ID:   item.FunctionCall.CallID,
				Type: "function",
				Function: provider.ProviderFunctionCall{
					Name:      item.FunctionCall.Name,
					Arguments: item.FunctionCall.Arguments,
				},
			}
			if lastAssistant != nil {
				lastAssistant.ToolCalls = append(lastAssistant.ToolCalls, call)
			} else {
				pr.Messages = append(pr.Messages, provider.ProviderMessage{
					Role:      string(api.RoleAssistant),
					ToolCalls: []provider.ProviderToolCall{call},
				})
				lastAssistant = &pr.Messages[len(pr.Messages)-1]
			}

		case api.ItemTypeFunctionCallOutput:
			if item.FunctionCallOutput == nil {
				continue
			}
			// ProviderMessage carries a single ToolCallID, so consecutive
			// outputs each get their own tool-role message rather than being
			// merged into one.
			pr.Messages = append(pr.Messages, provider.ProviderMessage{
				Role:       "tool",
				Content:    item.FunctionCallOutput.Output,
				ToolCallID: item.FunctionCallOutput.CallID,
			})
			lastAssistant = nil

		case api.ItemTypeReasoning:
			// Reasoning items are never sent back to the backend.
			continue
		}
	}

	if len(system) > 0 {
		pr.Messages = append([]provider.ProviderMessage{{
			Role:    "system",
			Content: strings.Join(system, "\n"),
		}}, pr.Messages...)
	}

	// Only function-typed tools are ever forwarded; built-in tool types are
	// already rejected upstream by api.CheckToolTypesSupported.
	for _, t := range req.Tools {
		if t.Type != "function" {
			continue
		}
		pr.Tools = append(pr.Tools, provider.ProviderTool{
			Type: t.Type,
			Function: provider.ProviderFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return pr
}

func setExtra(extra map[string]any, key string, value any) map[string]any {
	if extra == nil {
		extra = make(map[string]any)
	}
	extra[key] = value
	return extra
}

// translateMessageItem converts a user or assistant message item into a
// single ProviderMessage.
func translateMessageItem(item api.Item) provider.ProviderMessage {
	role := string(item.Message.Role)

	if item.Message.Role == api.RoleAssistant {
		return provider.ProviderMessage{Role: role, Content: extractAssistantContent(item.Message.Output)}
	}
	return provider.ProviderMessage{Role: role, Content: extractUserContent(item.Message.Content)}
}

// extractUserContent builds content from ContentParts.
// For text-only input, returns a plain string.
// For multimodal input (text + images), returns a []map[string]any content array
// in the Chat Completions format.
func extractUserContent(parts []api.ContentPart) any {
	if len(parts) == 0 {
		return ""
	}

	hasMultimodal := false
	for _, p := range parts {
		if p.Type != "input_text" {
			hasMultimodal = true
			break
		}
	}

	if !hasMultimodal {
		return extractUserText(parts)
	}

	var contentArray []map[string]any
	for _, p := range parts {
		switch p.Type {
		case "input_text":
			contentArray = append(contentArray, map[string]any{
				"type": "text",
				"text": p.Text,
			})
		case "input_image":
			imageURL := p.URL
			if imageURL == "" && p.Data != "" {
				mediaType := p.MediaType
				if mediaType == "" {
					mediaType = "image/png"
				}
				imageURL = fmt.Sprintf("data:%s;base64,%s", mediaType, p.Data)
			}
			if imageURL != "" {
				contentArray = append(contentArray, map[string]any{
					"type": "image_url",
					"image_url": map[string]any{
						"url": imageURL,
					},
				})
			}
		}
	}
	return contentArray
}

// extractUserText concatenates the text of every input_text content part.
func extractUserText(parts []api.ContentPart) string {
	var result string
	for _, p := range parts {
		if p.Type == "input_text" {
			result += p.Text
		}
	}
	return result
}

// extractAssistantContent builds a string from OutputContentParts.
func extractAssistantContent(parts []api.OutputContentPart) string {
	var result string
	for _, p := range parts {
		if p.Type == "output_text" {
			result += p.Text
		}
	}
	return result
}
