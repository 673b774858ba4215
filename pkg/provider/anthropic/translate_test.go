package anthropic

import (
	"testing"

	"github.com/mkeane/openresponses/pkg/provider"
)

func TestTranslateToMessages_SystemExtracted(t *testing.T) {
	req := &provider.ProviderRequest{
		Model: "claude-3-5-sonnet-latest",
		Messages: []provider.ProviderMessage{
			{Role: "system", Content: "be concise"},
			{Role: "user", Content: "hello"},
		},
	}

	mr := TranslateToMessages(req)

	if mr.System != "be concise" {
		t.Errorf("System = %q, want %q", mr.System, "be concise")
	}
	if len(mr.Messages) != 1 {
		t.Fatalf("expected 1 message after system extraction, got %d", len(mr.Messages))
	}
	if mr.Messages[0].Role != "user" || mr.Messages[0].Content[0].Text != "hello" {
		t.Errorf("unexpected user message: %+v", mr.Messages[0])
	}
}

func TestTranslateToMessages_MultipleSystemMessagesJoined(t *testing.T) {
	req := &provider.ProviderRequest{
		Model: "claude-3-5-sonnet-latest",
		Messages: []provider.ProviderMessage{
			{Role: "system", Content: "first"},
			{Role: "system", Content: "second"},
		},
	}

	mr := TranslateToMessages(req)

	if mr.System != "first\n\nsecond" {
		t.Errorf("System = %q, want joined system prompt", mr.System)
	}
}

func TestTranslateToMessages_ToolResultBecomesUserTurn(t *testing.T) {
	req := &provider.ProviderRequest{
		Model: "claude-3-5-sonnet-latest",
		Messages: []provider.ProviderMessage{
			{Role: "tool", ToolCallID: "toolu_1", Content: "22 degrees"},
		},
	}

	mr := TranslateToMessages(req)

	if len(mr.Messages) != 1 || mr.Messages[0].Role != "user" {
		t.Fatalf("expected a single user-role message, got %+v", mr.Messages)
	}
	block := mr.Messages[0].Content[0]
	if block.Type != "tool_result" || block.ToolUseID != "toolu_1" || block.Content != "22 degrees" {
		t.Errorf("unexpected tool_result block: %+v", block)
	}
}

func TestTranslateToMessages_AssistantToolCallBecomesToolUseBlock(t *testing.T) {
	req := &provider.ProviderRequest{
		Model: "claude-3-5-sonnet-latest",
		Messages: []provider.ProviderMessage{
			{
				Role: "assistant",
				ToolCalls: []provider.ProviderToolCall{
					{ID: "toolu_1", Type: "function", Function: provider.ProviderFunctionCall{Name: "get_weather", Arguments: `{"city":"berlin"}`}},
				},
			},
		},
	}

	mr := TranslateToMessages(req)

	if len(mr.Messages) != 1 {
		t.Fatalf("expected 1 assistant message, got %d", len(mr.Messages))
	}
	block := mr.Messages[0].Content[0]
	if block.Type != "tool_use" || block.Name != "get_weather" || block.ID != "toolu_1" {
		t.Errorf("unexpected tool_use block: %+v", block)
	}
	if string(block.Input) != `{"city":"berlin"}` {
		t.Errorf("Input = %s, want {\"city\":\"berlin\"}", block.Input)
	}
}

func TestTranslateToMessages_ToolChoice(t *testing.T) {
	req := &provider.ProviderRequest{
		Model:    "claude-3-5-sonnet-latest",
		Messages: []provider.ProviderMessage{{Role: "user", Content: "hi"}},
	}

	mr := TranslateToMessages(req)
	if mr.ToolChoice != nil {
		t.Errorf("ToolChoice = %v, want nil when request carries none", mr.ToolChoice)
	}
}

func TestTranslateToMessages_ReasoningBudgetEnablesThinking(t *testing.T) {
	req := &provider.ProviderRequest{
		Model:    "claude-3-5-sonnet-latest",
		Messages: []provider.ProviderMessage{{Role: "user", Content: "hi"}},
		Extra:    map[string]any{"reasoning_budget_tokens": 8192},
	}

	mr := TranslateToMessages(req)
	if mr.Thinking == nil {
		t.Fatal("expected Thinking to be set")
	}
	if mr.Thinking.BudgetTokens != 8192 {
		t.Errorf("BudgetTokens = %d, want 8192", mr.Thinking.BudgetTokens)
	}
	if mr.MaxTokens <= 8192 {
		t.Errorf("MaxTokens = %d, must exceed the thinking budget", mr.MaxTokens)
	}
}

func TestTranslateToMessages_DefaultMaxTokens(t *testing.T) {
	req := &provider.ProviderRequest{
		Model:    "claude-3-5-sonnet-latest",
		Messages: []provider.ProviderMessage{{Role: "user", Content: "hi"}},
	}

	mr := TranslateToMessages(req)
	if mr.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want default %d", mr.MaxTokens, defaultMaxTokens)
	}
}

func TestTranslateToMessages_MultimodalUserContentBecomesTextAndImageBlocks(t *testing.T) {
	req := &provider.ProviderRequest{
		Model: "claude-3-5-sonnet-latest",
		Messages: []provider.ProviderMessage{
			{
				Role: "user",
				Content: []map[string]any{
					{"type": "text", "text": "what is in this image?"},
					{"type": "image_url", "image_url": map[string]any{"url": "data:image/png;base64,AAAA"}},
				},
			},
		},
	}

	mr := TranslateToMessages(req)

	if len(mr.Messages) != 1 {
		t.Fatalf("expected 1 user message, got %d", len(mr.Messages))
	}
	blocks := mr.Messages[0].Content
	if len(blocks) != 2 {
		t.Fatalf("expected 2 content blocks, got %d: %+v", len(blocks), blocks)
	}
	if blocks[0].Type != "text" || blocks[0].Text != "what is in this image?" {
		t.Errorf("unexpected text block: %+v", blocks[0])
	}
	if blocks[1].Type != "image" || blocks[1].Source == nil {
		t.Fatalf("unexpected image block: %+v", blocks[1])
	}
	if blocks[1].Source.Type != "base64" || blocks[1].Source.MediaType != "image/png" || blocks[1].Source.Data != "AAAA" {
		t.Errorf("unexpected image source: %+v", blocks[1].Source)
	}
}

func TestTranslateToMessages_RemoteImageURLBecomesURLSource(t *testing.T) {
	req := &provider.ProviderRequest{
		Model: "claude-3-5-sonnet-latest",
		Messages: []provider.ProviderMessage{
			{
				Role: "user",
				Content: []map[string]any{
					{"type": "image_url", "image_url": map[string]any{"url": "https://example.com/cat.png"}},
				},
			},
		},
	}

	mr := TranslateToMessages(req)

	block := mr.Messages[0].Content[0]
	if block.Type != "image" || block.Source == nil || block.Source.Type != "url" || block.Source.URL != "https://example.com/cat.png" {
		t.Errorf("unexpected image block: %+v", block)
	}
}

func TestTranslateToMessages_ExplicitMaxTokensRespected(t *testing.T) {
	max := 256
	req := &provider.ProviderRequest{
		Model:     "claude-3-5-sonnet-latest",
		Messages:  []provider.ProviderMessage{{Role: "user", Content: "hi"}},
		MaxTokens: &max,
	}

	mr := TranslateToMessages(req)
	if mr.MaxTokens != 256 {
		t.Errorf("MaxTokens = %d, want 256", mr.MaxTokens)
	}
}
