package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkeane/openresponses/pkg/auth"
	"github.com/mkeane/openresponses/pkg/auth/jwt"
	"github.com/mkeane/openresponses/pkg/config"
)

func TestBuildRegistry_NoCredentials(t *testing.T) {
	cfg := &config.Config{}

	reg, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reg.List()) != 0 {
		t.Errorf("expected empty registry, got %d entries", len(reg.List()))
	}
}

func TestBuildRegistry_BindsConfiguredEntries(t *testing.T) {
	cfg := &config.Config{}
	cfg.Models.AnthropicAPIKey = "sk-test"
	cfg.Models.Entries = []config.ModelEntry{
		{ID: "claude-sonnet-4-responses", Provider: "anthropic", UnderlyingModel: "claude-sonnet-4-20250514", OwnedBy: "anthropic"},
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reg.Get("claude-sonnet-4-responses"); !ok {
		t.Error("expected claude-sonnet-4-responses to be registered")
	}
}

func TestBuildRegistry_UnknownProviderErrors(t *testing.T) {
	cfg := &config.Config{}
	cfg.Models.Entries = []config.ModelEntry{
		{ID: "ghost-model", Provider: "anthropic", UnderlyingModel: "whatever", OwnedBy: "anthropic"},
	}

	if _, err := buildRegistry(cfg); err == nil {
		t.Error("expected an error for a model entry with no matching provider credentials")
	}
}

func TestBuildAuthChain_EmptyKeysIsDevMode(t *testing.T) {
	cfg := &config.Config{}

	chain := buildAuthChain(cfg)
	r := httptest.NewRequest(http.MethodGet, "/v1/responses", nil)
	result := chain.Authenticators[0].Authenticate(context.Background(), r)
	if result.Decision != auth.Yes {
		t.Errorf("expected dev-mode chain to accept any request, got decision %v", result.Decision)
	}
}

func TestBuildAuthChain_WithKeysRejectsUnknownToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.APIKeys = []string{"secret-key"}

	chain := buildAuthChain(cfg)
	if len(chain.Authenticators) != 1 {
		t.Fatalf("expected exactly one authenticator, got %d", len(chain.Authenticators))
	}
	if chain.DefaultDecision != auth.No {
		t.Errorf("expected DefaultDecision=No when API keys are configured, got %v", chain.DefaultDecision)
	}
}

func TestBuildAuthChain_JWTTakesPrecedenceOverAPIKeys(t *testing.T) {
	// JWT and API-key authenticators both terminally reject any Bearer
	// token outside their own format, so they must never be chained
	// together: whichever config wins should be the ONLY authenticator.
	cfg := &config.Config{}
	cfg.Auth.JWT.JWKSURL = "https://issuer.example.com/.well-known/jwks.json"
	cfg.Auth.APIKeys = []string{"secret-key"}

	chain := buildAuthChain(cfg)
	if len(chain.Authenticators) != 1 {
		t.Fatalf("expected exactly one authenticator when both JWT and API keys are configured, got %d", len(chain.Authenticators))
	}
	if _, ok := chain.Authenticators[0].(*jwt.Authenticator); !ok {
		t.Errorf("expected the JWT authenticator to take precedence, got %T", chain.Authenticators[0])
	}
}
