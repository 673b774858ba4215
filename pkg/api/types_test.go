package api

import (
	"encoding/json"
	"reflect"
	"testing"
)

// roundTrip marshals v to JSON, then unmarshals back into a new value of the
// same type and returns it. It fails the test on any error.
func roundTrip[T any](t *testing.T, v T) T {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var got T
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error: %v\nJSON: %s", err, data)
	}
	return got
}

func assertDeepEqual(t *testing.T, got, want any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round-trip mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

// ---------------------------------------------------------------------------
// TestItemRoundTrip
// ---------------------------------------------------------------------------

func TestItemRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		item Item
	}{
		{
			name: "user message with ContentPart input",
			item: Item{
				ID:     "msg_" + hex32,
				Type:   ItemTypeMessage,
				Status: ItemStatusCompleted,
				Message: &MessageData{
					Role:    RoleUser,
					Content: []ContentPart{{Type: "input_text", Text: "Hello, world!"}},
				},
			},
		},
		{
			name: "assistant message with OutputContentPart including annotations and logprobs",
			item: Item{
				ID:     "msg_" + hex32,
				Type:   ItemTypeMessage,
				Status: ItemStatusCompleted,
				Message: &MessageData{
					Role: RoleAssistant,
					Output: []OutputContentPart{
						{
							Type: "output_text",
							Text: "Here is the answer.",
							Annotations: []Annotation{
								{Type: "url_citation", Text: "source", StartIndex: 0, EndIndex: 6},
							},
							Logprobs: []TokenLogprob{
								{
									Token:   "Here",
									Logprob: -0.123,
									TopLogprobs: []TopLogprob{
										{Token: "Here", Logprob: -0.123},
										{Token: "The", Logprob: -1.5},
									},
								},
							},
						},
					},
				},
			},
		},
		{
			name: "function_call",
			item: Item{
				ID:     "fc_" + hex32,
				Type:   ItemTypeFunctionCall,
				Status: ItemStatusCompleted,
				FunctionCall: &FunctionCallData{
					Name:      "get_weather",
					CallID:    "call_abc123",
					Arguments: `{"location":"Berlin"}`,
				},
			},
		},
		{
			name: "function_call_output",
			item: Item{
				ID:     "msg_" + hex32,
				Type:   ItemTypeFunctionCallOutput,
				Status: ItemStatusCompleted,
				FunctionCallOutput: &FunctionCallOutputData{
					CallID: "call_abc123",
					Output: `{"temp":20,"unit":"celsius"}`,
				},
			},
		},
		{
			name: "reasoning",
			item: Item{
				ID:     "rs_" + hex32,
				Type:   ItemTypeReasoning,
				Status: ItemStatusCompleted,
				Reasoning: &ReasoningData{
					Summary: []ReasoningSummaryPart{
						{Type: "summary_text", Text: "Considered options A and B"},
					},
					EncryptedContent: nil,
				},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, tc.item)
			assertDeepEqual(t, got, tc.item)
		})
	}
}

func TestItemReferenceMarshalsIDOnly(t *testing.T) {
	item := Item{
		ID:            "should_be_ignored",
		Type:          ItemTypeItemReference,
		ItemReference: &ItemReferenceData{ID: "msg_" + hex32},
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if len(m) != 2 {
		t.Errorf("expected exactly 2 keys (type, id), got %v", m)
	}
	if m["id"] != "msg_"+hex32 {
		t.Errorf("id = %v, want %v", m["id"], "msg_"+hex32)
	}

	var got Item
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got.ItemReference == nil || got.ItemReference.ID != "msg_"+hex32 {
		t.Errorf("ItemReference = %+v, want ID %q", got.ItemReference, "msg_"+hex32)
	}
}

// ---------------------------------------------------------------------------
// TestContentPartRoundTrip
// ---------------------------------------------------------------------------

func TestContentPartRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		part ContentPart
	}{
		{name: "input_text", part: ContentPart{Type: "input_text", Text: "Some user text"}},
		{name: "input_image with url", part: ContentPart{Type: "input_image", URL: "https://example.com/image.png"}},
		{
			name: "input_audio with data and media_type",
			part: ContentPart{Type: "input_audio", Data: "base64encodedaudiodata==", MediaType: "audio/wav"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, tc.part)
			assertDeepEqual(t, got, tc.part)
		})
	}
}

// ---------------------------------------------------------------------------
// TestOutputContentPartRoundTrip
// ---------------------------------------------------------------------------

func TestOutputContentPartRoundTrip(t *testing.T) {
	part := OutputContentPart{
		Type: "output_text",
		Text: "The capital of France is Paris.",
		Annotations: []Annotation{
			{Type: "url_citation", Text: "Wikipedia", StartIndex: 27, EndIndex: 32},
		},
		Logprobs: []TokenLogprob{
			{
				Token:   "The",
				Logprob: -0.05,
				TopLogprobs: []TopLogprob{
					{Token: "The", Logprob: -0.05},
					{Token: "A", Logprob: -3.2},
				},
			},
			{Token: " capital", Logprob: -0.12},
		},
	}

	got := roundTrip(t, part)
	assertDeepEqual(t, got, part)
}

func TestOutputContentPartEmptyArraysNeverNull(t *testing.T) {
	part := OutputContentPart{Type: "output_text", Text: "hi"}

	data, err := json.Marshal(part)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if string(m["annotations"]) != "[]" {
		t.Errorf("annotations = %s, want []", m["annotations"])
	}
	if string(m["logprobs"]) != "[]" {
		t.Errorf("logprobs = %s, want []", m["logprobs"])
	}
}

// ---------------------------------------------------------------------------
// TestToolChoiceRoundTrip
// ---------------------------------------------------------------------------

func TestToolChoiceRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		choice ToolChoice
	}{
		{name: "auto", choice: ToolChoiceAuto},
		{name: "required", choice: ToolChoiceRequired},
		{name: "none", choice: ToolChoiceNone},
		{name: "function object", choice: NewToolChoiceFunction("get_weather")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, tc.choice)
			assertDeepEqual(t, got, tc.choice)
		})
	}
}

// ---------------------------------------------------------------------------
// TestCreateResponseRequestRoundTrip
// ---------------------------------------------------------------------------

func TestCreateResponseRequestRoundTrip(t *testing.T) {
	tc := ToolChoiceRequired
	req := CreateResponseRequest{
		Model: "claude-sonnet-4-5",
		Input: []Item{
			{
				ID:      "msg_" + hex32,
				Type:    ItemTypeMessage,
				Message: &MessageData{Role: RoleUser, Content: []ContentPart{{Type: "input_text", Text: "Hi"}}},
			},
		},
		Instructions: "Be concise.",
		Tools: []ToolDefinition{
			{
				Type:        "function",
				Name:        "get_weather",
				Description: "Get current weather",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"location":{"type":"string"}}}`),
			},
		},
		ToolChoice:         &tc,
		AllowedTools:       []string{"get_weather"},
		Store:              boolPtr(true),
		Stream:             true,
		PreviousResponseID: "resp_" + hex32,
		Truncation:         "auto",
		ServiceTier:        "default",
		MaxOutputTokens:    intPtr(1024),
		Temperature:        float64Ptr(0.7),
		TopP:               float64Ptr(0.9),
		Extensions: map[string]json.RawMessage{
			"acme:telemetry": json.RawMessage(`{"trace_id":"abc"}`),
		},
	}

	got := roundTrip(t, req)
	assertDeepEqual(t, got, req)
}

// ---------------------------------------------------------------------------
// TestResponseRoundTrip
// ---------------------------------------------------------------------------

func TestResponseRoundTrip(t *testing.T) {
	prevID := "resp_" + hex32
	code := "internal"
	resp := Response{
		ID:     "resp_" + hex32,
		Object: "response",
		Status: ResponseStatusCompleted,
		Output: []Item{
			{
				ID:     "msg_" + hex32,
				Type:   ItemTypeMessage,
				Status: ItemStatusCompleted,
				Message: &MessageData{
					Role:   RoleAssistant,
					Output: []OutputContentPart{{Type: "output_text", Text: "Hello!"}},
				},
			},
		},
		Model: "claude-sonnet-4-5",
		Usage: &Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		Error: &APIError{
			Type:    ErrorTypeServerError,
			Code:    &code,
			Param:   "input",
			Message: "something went wrong",
		},
		PreviousResponseID: &prevID,
		CreatedAt:          1700000000,
		Extensions: map[string]json.RawMessage{
			"acme:metrics": json.RawMessage(`{"latency_ms":42}`),
		},
	}

	got := roundTrip(t, resp)
	assertDeepEqual(t, got, resp)
}

// ---------------------------------------------------------------------------
// TestMessageWireFormatIsFlat
// ---------------------------------------------------------------------------

func TestMessageWireFormatIsFlat(t *testing.T) {
	item := Item{
		ID:     "msg_" + hex32,
		Type:   ItemTypeMessage,
		Status: ItemStatusCompleted,
		Message: &MessageData{
			Role:    RoleUser,
			Content: []ContentPart{{Type: "input_text", Text: "hi"}},
		},
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if _, ok := m["message"]; ok {
		t.Error("expected no nested \"message\" key in flat wire format")
	}
	if _, ok := m["role"]; !ok {
		t.Error("expected top-level \"role\" key in flat wire format")
	}
	if _, ok := m["content"]; !ok {
		t.Error("expected top-level \"content\" key in flat wire format")
	}
}

func TestEmptyMessageContentIsEmptyArrayNotNull(t *testing.T) {
	item := Item{Type: ItemTypeMessage}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if string(m["content"]) != "[]" {
		t.Errorf("content = %s, want []", m["content"])
	}
}

// ---------------------------------------------------------------------------
// TestIsExtensionType
// ---------------------------------------------------------------------------

func TestIsExtensionType(t *testing.T) {
	tests := []struct {
		name     string
		itemType ItemType
		want     bool
	}{
		{name: "message is not extension", itemType: ItemTypeMessage, want: false},
		{name: "function_call is not extension", itemType: ItemTypeFunctionCall, want: false},
		{name: "function_call_output is not extension", itemType: ItemTypeFunctionCallOutput, want: false},
		{name: "reasoning is not extension", itemType: ItemTypeReasoning, want: false},
		{name: "item_reference is not extension", itemType: ItemTypeItemReference, want: false},
		{name: "acme:telemetry is extension", itemType: "acme:telemetry", want: true},
		{name: "vendor:custom_type is extension", itemType: "vendor:custom_type", want: true},
		{name: "empty string is not extension", itemType: "", want: false},
		{name: "no colon is not extension", itemType: "custom", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := IsExtensionType(tc.itemType)
			if got != tc.want {
				t.Errorf("IsExtensionType(%q) = %v, want %v", tc.itemType, got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Extension round-trip tests
// ---------------------------------------------------------------------------

func TestExtensionItemRoundTrip(t *testing.T) {
	extData := json.RawMessage(`{"trace_id":"abc123","duration_ms":42}`)
	item := Item{
		ID:        "msg_" + hex32,
		Type:      "acme:telemetry_chunk",
		Status:    ItemStatusCompleted,
		Extension: extData,
	}

	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var got Item
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if string(got.Extension) != string(extData) {
		t.Errorf("Extension data lost: got %s, want %s", string(got.Extension), string(extData))
	}
	if got.Type != "acme:telemetry_chunk" {
		t.Errorf("Type = %q, want %q", got.Type, "acme:telemetry_chunk")
	}
}

func TestRequestExtensionsRoundTrip(t *testing.T) {
	req := CreateResponseRequest{
		Model: "test-model",
		Input: []Item{{Type: ItemTypeMessage, Message: &MessageData{Role: RoleUser}}},
		Extensions: map[string]json.RawMessage{
			"acme:config": json.RawMessage(`{"mode":"fast","retries":3}`),
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var got CreateResponseRequest
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if string(got.Extensions["acme:config"]) != `{"mode":"fast","retries":3}` {
		t.Errorf("Extensions lost: got %s", string(got.Extensions["acme:config"]))
	}
}

func TestResponseExtensionsRoundTrip(t *testing.T) {
	resp := Response{
		ID:        "resp_" + hex32,
		Object:    "response",
		Status:    ResponseStatusCompleted,
		Model:     "test-model",
		CreatedAt: 1700000000,
		Extensions: map[string]json.RawMessage{
			"acme:metrics": json.RawMessage(`{"latency_ms":150}`),
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var got Response
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if string(got.Extensions["acme:metrics"]) != `{"latency_ms":150}` {
		t.Errorf("Extensions lost: got %s", string(got.Extensions["acme:metrics"]))
	}
}
