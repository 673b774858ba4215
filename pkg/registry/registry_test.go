package registry

import (
	"context"
	"testing"

	"github.com/mkeane/openresponses/pkg/provider"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string                                { return s.name }
func (s *stubProvider) Capabilities() provider.ProviderCapabilities { return provider.ProviderCapabilities{} }
func (s *stubProvider) Complete(_ context.Context, _ *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	return nil, nil
}
func (s *stubProvider) Stream(_ context.Context, _ *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	return nil, nil
}
func (s *stubProvider) ListModels(_ context.Context) ([]provider.ModelInfo, error) { return nil, nil }
func (s *stubProvider) Close() error                                              { return nil }

func TestRegistry_ResolveKnownModel(t *testing.T) {
	anthropic := &stubProvider{name: "anthropic"}
	r := New([]Entry{
		{ID: "claude-sonnet-4-responses", Adapter: anthropic, UnderlyingModel: "claude-sonnet-4-20250514", OwnedBy: "anthropic"},
	})

	adapter, underlying, err := r.Resolve("claude-sonnet-4-responses")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if adapter != anthropic {
		t.Errorf("adapter = %v, want the registered anthropic adapter", adapter)
	}
	if underlying != "claude-sonnet-4-20250514" {
		t.Errorf("underlying = %q, want claude-sonnet-4-20250514", underlying)
	}
}

func TestRegistry_ResolveUnknownModel(t *testing.T) {
	r := New(nil)
	if _, _, err := r.Resolve("nope"); err == nil {
		t.Fatal("expected an error for an unregistered model id")
	}
}

func TestRegistry_GetAndList(t *testing.T) {
	p := &stubProvider{name: "openaicompat"}
	r := New([]Entry{
		{ID: "b-model", Adapter: p, UnderlyingModel: "b", OwnedBy: "openaicompat", Created: 2},
		{ID: "a-model", Adapter: p, UnderlyingModel: "a", OwnedBy: "openaicompat", Created: 1},
	})

	summary, ok := r.Get("a-model")
	if !ok || summary.Object != "model" || summary.Created != 1 {
		t.Fatalf("Get(a-model) = %+v, %v", summary, ok)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) = true, want false")
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(list))
	}
	// Sorted by id: "a-model" before "b-model".
	if list[0].ID != "a-model" || list[1].ID != "b-model" {
		t.Errorf("List() = %+v, want sorted by id", list)
	}
}
