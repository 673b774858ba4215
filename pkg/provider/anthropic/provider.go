package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mkeane/openresponses/pkg/provider"
)

// Config holds the configuration for an Anthropic-backed Adapter.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// ModelMapper optionally rewrites the model name before it is sent to
	// the backend.
	ModelMapper func(string) string
}

// Adapter implements provider.Provider on top of the Anthropic Messages API.
type Adapter struct {
	client *Client
	name   string
	caps   provider.ProviderCapabilities
}

var _ provider.Provider = (*Adapter)(nil)

// New creates a new Adapter for the Anthropic Messages API.
func New(name string, cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: APIKey is required")
	}
	if cfg.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	client := NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	client.ModelMapper = cfg.ModelMapper

	if name == "" {
		name = "anthropic"
	}

	return &Adapter{
		client: client,
		name:   name,
		caps: provider.ProviderCapabilities{
			Streaming:   true,
			ToolCalling: true,
			Vision:      true,
			Reasoning:   true,
		},
	}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string { return a.name }

// Capabilities returns what this provider supports.
func (a *Adapter) Capabilities() provider.ProviderCapabilities { return a.caps }

// Complete delegates to the underlying Client.
func (a *Adapter) Complete(ctx context.Context, req *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	return a.client.Complete(ctx, req)
}

// Stream delegates to the underlying Client.
func (a *Adapter) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	return a.client.Stream(ctx, req)
}

// ListModels delegates to the underlying Client.
func (a *Adapter) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return a.client.ListModels(ctx)
}

// Close releases client resources.
func (a *Adapter) Close() error { return a.client.Close() }
