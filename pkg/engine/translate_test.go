package engine

import (
	"testing"

	"github.com/mkeane/openresponses/pkg/api"
)

func TestTranslateRequest_InstructionsBecomeLeadingSystemMessage(t *testing.T) {
	req := &api.CreateResponseRequest{Model: "m", Instructions: "be terse"}
	pr := translateRequest(req, []api.Item{textItem(api.RoleUser, "hi")})

	if len(pr.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(pr.Messages))
	}
	if pr.Messages[0].Role != "system" || pr.Messages[0].Content != "be terse" {
		t.Errorf("Messages[0] = %+v, want leading system message", pr.Messages[0])
	}
}

func TestTranslateRequest_SystemAndDeveloperItemsJoinWithInstructions(t *testing.T) {
	req := &api.CreateResponseRequest{Model: "m", Instructions: "top-level instructions"}
	items := []api.Item{
		textItem(api.RoleSystem, "system note"),
		textItem(api.RoleDeveloper, "developer note"),
		textItem(api.RoleUser, "hi"),
	}
	pr := translateRequest(req, items)

	if len(pr.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2 (one joined system + one user)", len(pr.Messages))
	}
	want := "top-level instructions\nsystem note\ndeveloper note"
	if pr.Messages[0].Content != want {
		t.Errorf("Messages[0].Content = %q, want %q", pr.Messages[0].Content, want)
	}
	if pr.Messages[1].Role != "user" {
		t.Errorf("Messages[1].Role = %q, want user", pr.Messages[1].Role)
	}
}

func TestTranslateRequest_UserMessageTextOnly(t *testing.T) {
	req := &api.CreateResponseRequest{Model: "m"}
	pr := translateRequest(req, []api.Item{textItem(api.RoleUser, "hello")})

	if len(pr.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(pr.Messages))
	}
	if s, ok := pr.Messages[0].Content.(string); !ok || s != "hello" {
		t.Errorf("Content = %#v, want plain string \"hello\"", pr.Messages[0].Content)
	}
}

func TestTranslateRequest_UserMessageWithImageBecomesContentArray(t *testing.T) {
	item := api.Item{
		Type: api.ItemTypeMessage,
		Message: &api.MessageData{
			Role: api.RoleUser,
			Content: []api.ContentPart{
				{Type: "input_text", Text: "what is this?"},
				{Type: "input_image", URL: "https://example.com/cat.png"},
			},
		},
	}
	pr := translateRequest(&api.CreateResponseRequest{Model: "m"}, []api.Item{item})

	parts, ok := pr.Messages[0].Content.([]map[string]any)
	if !ok {
		t.Fatalf("Content = %#v, want []map[string]any", pr.Messages[0].Content)
	}
	if len(parts) != 2 || parts[1]["type"] != "image_url" {
		t.Errorf("parts = %+v, want a text part then an image_url part", parts)
	}
}

func TestTranslateRequest_InlineImageDataBecomesDataURI(t *testing.T) {
	item := api.Item{
		Type: api.ItemTypeMessage,
		Message: &api.MessageData{
			Role: api.RoleUser,
			Content: []api.ContentPart{
				{Type: "input_image", Data: "Zm9v", MediaType: "image/jpeg"},
			},
		},
	}
	pr := translateRequest(&api.CreateResponseRequest{Model: "m"}, []api.Item{item})

	parts := pr.Messages[0].Content.([]map[string]any)
	url := parts[0]["image_url"].(map[string]any)["url"].(string)
	if url != "data:image/jpeg;base64,Zm9v" {
		t.Errorf("url = %q, want a data URI", url)
	}
}

func TestTranslateRequest_ConsecutiveFunctionCallsMergeOntoOneAssistantMessage(t *testing.T) {
	items := []api.Item{
		{Type: api.ItemTypeFunctionCall, FunctionCall: &api.FunctionCallData{Name: "a", CallID: "call_1", Arguments: "{}"}},
		{Type: api.ItemTypeFunctionCall, FunctionCall: &api.FunctionCallData{Name: "b", CallID: "call_2", Arguments: "{}"}},
	}
	pr := translateRequest(&api.CreateResponseRequest{Model: "m"}, items)

	if len(pr.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(pr.Messages))
	}
	if len(pr.Messages[0].ToolCalls) != 2 {
		t.Fatalf("len(ToolCalls) = %d, want 2", len(pr.Messages[0].ToolCalls))
	}
	if pr.Messages[0].ToolCalls[0].ID != "call_1" || pr.Messages[0].ToolCalls[1].ID != "call_2" {
		t.Errorf("ToolCalls = %+v, want call_1 then call_2 in order", pr.Messages[0].ToolCalls)
	}
}

func TestTranslateRequest_FunctionCallOutputBecomesToolMessage(t *testing.T) {
	items := []api.Item{
		{Type: api.ItemTypeFunctionCallOutput, FunctionCallOutput: &api.FunctionCallOutputData{CallID: "call_1", Output: "42"}},
	}
	pr := translateRequest(&api.CreateResponseRequest{Model: "m"}, items)

	if len(pr.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(pr.Messages))
	}
	msg := pr.Messages[0]
	if msg.Role != "tool" || msg.ToolCallID != "call_1" || msg.Content != "42" {
		t.Errorf("Messages[0] = %+v, want a tool message for call_1", msg)
	}
}

func TestTranslateRequest_ConsecutiveFunctionCallOutputsEachGetOwnMessage(t *testing.T) {
	items := []api.Item{
		{Type: api.ItemTypeFunctionCallOutput, FunctionCallOutput: &api.FunctionCallOutputData{CallID: "call_1", Output: "a"}},
		{Type: api.ItemTypeFunctionCallOutput, FunctionCallOutput: &api.FunctionCallOutputData{CallID: "call_2", Output: "b"}},
	}
	pr := translateRequest(&api.CreateResponseRequest{Model: "m"}, items)

	// ProviderMessage.ToolCallID is a single string field, so each tool
	// result gets its own message rather than being merged.
	if len(pr.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(pr.Messages))
	}
}

func TestTranslateRequest_ReasoningItemNeverSentToBackend(t *testing.T) {
	items := []api.Item{
		{Type: api.ItemTypeReasoning, Reasoning: &api.ReasoningData{Summary: []api.ReasoningSummaryPart{{Type: "summary_text", Text: "thinking..."}}}},
		textItem(api.RoleUser, "hi"),
	}
	pr := translateRequest(&api.CreateResponseRequest{Model: "m"}, items)

	if len(pr.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 (reasoning item dropped)", len(pr.Messages))
	}
}

func TestTranslateRequest_OnlyFunctionTypedToolsForwarded(t *testing.T) {
	req := &api.CreateResponseRequest{
		Model: "m",
		Tools: []api.ToolDefinition{
			{Type: "function", Name: "get_weather"},
		},
	}
	pr := translateRequest(req, nil)

	if len(pr.Tools) != 1 || pr.Tools[0].Function.Name != "get_weather" {
		t.Errorf("Tools = %+v, want only get_weather", pr.Tools)
	}
}

func TestTranslateRequest_ReasoningEffortMapsToTokenBudget(t *testing.T) {
	effort := "high"
	req := &api.CreateResponseRequest{Model: "m", Reasoning: &api.ReasoningConfig{Effort: &effort}}
	pr := translateRequest(req, nil)

	if pr.Extra["reasoning_budget_tokens"] != 32768 {
		t.Errorf("Extra[reasoning_budget_tokens] = %v, want 32768", pr.Extra["reasoning_budget_tokens"])
	}
}
