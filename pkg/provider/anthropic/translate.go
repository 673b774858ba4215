package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/mkeane/openresponses/pkg/provider"
)

const defaultMaxTokens = 4096

// TranslateToMessages converts a ProviderRequest into a MessagesRequest.
// System-role messages are pulled out of Messages into the top-level System
// field, since Anthropic never accepts "system" as a message role.
// Tool-role messages (function outputs) become user-turn tool_result blocks,
// with consecutive tool results merged into one user message; assistant
// tool calls become tool_use blocks in the same message as that assistant
// turn's text.
func TranslateToMessages(req *provider.ProviderRequest) MessagesRequest {
	mr := MessagesRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		MaxTokens:   defaultMaxTokens,
	}
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		mr.MaxTokens = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		mr.StopSequences = req.Stop
	}
	if budget, ok := req.Extra["reasoning_budget_tokens"].(int); ok && budget > 0 {
		mr.Thinking = &ThinkingConfig{Type: "enabled", BudgetTokens: budget}
		if mr.MaxTokens <= budget {
			mr.MaxTokens = budget + defaultMaxTokens
		}
	}

	for _, pm := range req.Messages {
		switch pm.Role {
		case "system":
			if s, ok := pm.Content.(string); ok {
				if mr.System != "" {
					mr.System += "\n\n" + s
				} else {
					mr.System = s
				}
			}
			continue

		case "tool":
			block := Block{
				Type:      "tool_result",
				ToolUseID: pm.ToolCallID,
				Content:   contentToString(pm.Content),
			}
			if n := len(mr.Messages); n > 0 && mr.Messages[n-1].Role == "user" && lastBlockIsToolResult(mr.Messages[n-1].Content) {
				mr.Messages[n-1].Content = append(mr.Messages[n-1].Content, block)
			} else {
				mr.Messages = append(mr.Messages, Message{Role: "user", Content: []Block{block}})
			}
			continue

		case "assistant":
			var blocks []Block
			if text := contentToString(pm.Content); text != "" {
				blocks = append(blocks, Block{Type: "text", Text: text})
			}
			for _, tc := range pm.ToolCalls {
				blocks = append(blocks, Block{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: argumentsToInput(tc.Function.Arguments),
				})
			}
			if len(blocks) == 0 {
				continue
			}
			mr.Messages = append(mr.Messages, Message{Role: "assistant", Content: blocks})
			continue

		default: // "user"
			mr.Messages = append(mr.Messages, Message{
				Role:    "user",
				Content: contentToBlocks(pm.Content),
			})
		}
	}

	if len(req.Tools) > 0 {
		mr.Tools = make([]Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			mr.Tools = append(mr.Tools, Tool{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				InputSchema: t.Function.Parameters,
			})
		}
	}

	if req.ToolChoice != nil {
		switch {
		case req.ToolChoice.String == "required":
			mr.ToolChoice = map[string]string{"type": "any"}
		case req.ToolChoice.String == "none":
			mr.ToolChoice = map[string]string{"type": "none"}
		case req.ToolChoice.Function != nil:
			mr.ToolChoice = map[string]string{"type": "tool", "name": req.ToolChoice.Function.Name}
		default:
			mr.ToolChoice = map[string]string{"type": "auto"}
		}
	}

	return mr
}

// lastBlockIsToolResult reports whether a user message's trailing content
// block is a tool_result, so consecutive tool outputs merge into one turn.
func lastBlockIsToolResult(blocks []Block) bool {
	if len(blocks) == 0 {
		return false
	}
	return blocks[len(blocks)-1].Type == "tool_result"
}

func contentToString(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}

// contentToBlocks converts a ProviderMessage's content into Anthropic content
// blocks. Plain string content becomes a single text block; the Chat
// Completions-shaped content-part array engine.extractUserContent produces
// for multimodal input (text and input_image parts) is translated part by
// part into Anthropic's text/image block shapes, rather than silently
// collapsing images to an empty string.
func contentToBlocks(content any) []Block {
	if s, ok := content.(string); ok {
		return []Block{{Type: "text", Text: s}}
	}

	parts, ok := content.([]map[string]any)
	if !ok {
		return []Block{{Type: "text", Text: ""}}
	}

	blocks := make([]Block, 0, len(parts))
	for _, part := range parts {
		switch part["type"] {
		case "text":
			text, _ := part["text"].(string)
			blocks = append(blocks, Block{Type: "text", Text: text})
		case "image_url":
			imageURL, _ := part["image_url"].(map[string]any)
			url, _ := imageURL["url"].(string)
			if block, ok := imageBlockFromURL(url); ok {
				blocks = append(blocks, block)
			}
		}
	}
	if len(blocks) == 0 {
		return []Block{{Type: "text", Text: ""}}
	}
	return blocks
}

// imageBlockFromURL builds an Anthropic image block from a Chat
// Completions-style image_url value, which is either a data: URI (decoded
// into an inline base64 source) or a regular http(s) URL (passed through as
// a url source for Anthropic to fetch itself).
func imageBlockFromURL(url string) (Block, bool) {
	if url == "" {
		return Block{}, false
	}
	if mediaType, data, ok := parseDataURL(url); ok {
		return Block{Type: "image", Source: &ImageSource{Type: "base64", MediaType: mediaType, Data: data}}, true
	}
	return Block{Type: "image", Source: &ImageSource{Type: "url", URL: url}}, true
}

func parseDataURL(url string) (mediaType, data string, ok bool) {
	const prefix = "data:"
	if !strings.HasPrefix(url, prefix) {
		return "", "", false
	}
	rest := url[len(prefix):]
	const marker = ";base64,"
	idx := strings.Index(rest, marker)
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+len(marker):], true
}

func argumentsToInput(arguments string) json.RawMessage {
	if arguments == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(arguments)
}
