// Command server runs the OpenResponses gateway.
//
// Configuration is layered: built-in defaults, an optional YAML file
// (CONFIG_FILE or a conventional path), environment variable overrides
// (each also readable from a <NAME>_FILE secret file), and finally _file
// YAML references. See pkg/config for the full precedence rules and
// pkg/config/loader.go for the bound environment variables (API_KEYS, DATABASE_URL, ANTHROPIC_API_KEY,
// OPENAI_COMPAT_BASE_URL, OPENAI_COMPAT_API_KEY, PORT, CONFIG_FILE).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mkeane/openresponses/pkg/auth"
	"github.com/mkeane/openresponses/pkg/auth/apikey"
	"github.com/mkeane/openresponses/pkg/auth/jwt"
	"github.com/mkeane/openresponses/pkg/auth/noop"
	"github.com/mkeane/openresponses/pkg/config"
	"github.com/mkeane/openresponses/pkg/debug"
	"github.com/mkeane/openresponses/pkg/engine"
	"github.com/mkeane/openresponses/pkg/provider"
	"github.com/mkeane/openresponses/pkg/provider/anthropic"
	"github.com/mkeane/openresponses/pkg/provider/openaicompat"
	"github.com/mkeane/openresponses/pkg/registry"
	"github.com/mkeane/openresponses/pkg/storage/memory"
	"github.com/mkeane/openresponses/pkg/storage/postgres"
	"github.com/mkeane/openresponses/pkg/transport"
	transporthttp "github.com/mkeane/openresponses/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	debug.Init("", "")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("building model registry: %w", err)
	}

	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("building storage: %w", err)
	}

	eng, err := engine.New(reg, store, engine.Config{}, slog.Default())
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	chain := buildAuthChain(cfg)

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithModels(reg),
		transporthttp.WithHTTPMiddleware(auth.Middleware(chain, nil, auth.DefaultBypassEndpoints)),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithWriteTimeout(cfg.Server.WriteTimeout),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithMetrics(cfg.Observability.Metrics.Path))
	}

	srv := transporthttp.NewServer(eng, store, opts...)

	slog.Info("server starting",
		"port", cfg.Server.Port,
		"models", len(reg.List()),
		"dev_mode", len(cfg.Auth.APIKeys) == 0,
	)

	return srv.ListenAndServe()
}

// buildRegistry constructs one provider adapter per configured backend
// (adapter instances are cached per process, never per model) and binds
// each configured model entry to the adapter matching its Provider field.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	adapters := make(map[string]provider.Provider, 2)

	if cfg.Models.AnthropicAPIKey != "" {
		a, err := anthropic.New("anthropic", anthropic.Config{
			APIKey:  cfg.Models.AnthropicAPIKey,
			Timeout: 120 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.Models.OpenAICompatBaseURL != "" {
		a, err := openaicompat.New("openai-compat", openaicompat.Config{
			BaseURL: cfg.Models.OpenAICompatBaseURL,
			APIKey:  cfg.Models.OpenAICompatAPIKey,
			Timeout: 120 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai-compat adapter: %w", err)
		}
		adapters["openai-compat"] = a
	}

	entries := make([]registry.Entry, 0, len(cfg.Models.Entries))
	for _, e := range cfg.Models.Entries {
		a, ok := adapters[e.Provider]
		if !ok {
			return nil, fmt.Errorf("model %q references provider %q, but no credentials are configured for it", e.ID, e.Provider)
		}
		entries = append(entries, registry.Entry{
			ID:              e.ID,
			Adapter:         a,
			UnderlyingModel: e.UnderlyingModel,
			OwnedBy:         e.OwnedBy,
		})
	}

	return registry.New(entries), nil
}

func buildStore(cfg *config.Config) (transport.ResponseStore, error) {
	if cfg.Storage.DatabaseURL == "" {
		slog.Info("storage: using in-memory store", "max_size", cfg.Storage.MaxSize)
		return memory.New(cfg.Storage.MaxSize), nil
	}

	slog.Info("storage: using postgres store", "migrate_on_start", cfg.Storage.MigrateOnStart)
	store, err := postgres.New(context.Background(), postgres.Config{
		DSN:            cfg.Storage.DatabaseURL,
		MaxConns:       cfg.Storage.MaxConns,
		MigrateOnStart: cfg.Storage.MigrateOnStart,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return store, nil
}

// buildAuthChain picks exactly one bearer-token scheme: both the JWT and
// API-key authenticators terminally reject (Decision: No, not Abstain) any
// Bearer token that isn't in their own format, so chaining them together
// would make whichever runs first swallow every request meant for the
// other. JWT wins when a JWKS URL is configured; otherwise the static
// API-key allow-list; otherwise dev mode, where any well-formed bearer
// token is accepted via the noop authenticator's always-Yes vote.
func buildAuthChain(cfg *config.Config) *auth.AuthChain {
	switch {
	case cfg.Auth.JWT.JWKSURL != "":
		return &auth.AuthChain{
			Authenticators: []auth.Authenticator{jwt.New(jwt.Config{
				JWKSURL:     cfg.Auth.JWT.JWKSURL,
				Issuer:      cfg.Auth.JWT.Issuer,
				Audience:    cfg.Auth.JWT.Audience,
				ScopesClaim: cfg.Auth.JWT.ScopesClaim,
			})},
			DefaultDecision: auth.No,
		}

	case len(cfg.Auth.APIKeys) > 0:
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
		for _, key := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key:      key,
				Identity: auth.Identity{Subject: "api-key", ServiceTier: "default"},
			})
		}
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}

	default:
		slog.Warn("no API_KEYS or JWT_JWKS_URL configured, running in dev mode: any bearer token is accepted")
		return &auth.AuthChain{
			Authenticators:  []auth.Authenticator{&noop.Authenticator{}},
			DefaultDecision: auth.No,
		}
	}
}
