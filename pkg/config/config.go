// Package config provides unified configuration for the gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified via CONFIG_FILE)
//  3. Environment variable overrides (including _FILE-suffixed env vars)
//  4. File reference resolution (_file-suffixed YAML fields)
//  5. Default model-registry synthesis from whichever provider credentials ended up set
//  6. Validation
package config

import "time"

// Config holds all configuration for the gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Models        ModelsConfig        `yaml:"models"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// ModelsConfig holds provider credentials and the static model registry table.
// Entries, when non-empty, are taken verbatim: registering a new model is a
// configuration change, not a code change. When empty, Load synthesizes one
// entry per configured backend so a minimal env-var-only deployment still
// publishes a usable catalog.
type ModelsConfig struct {
	AnthropicAPIKey        string `yaml:"anthropic_api_key"`
	AnthropicAPIKeyFile    string `yaml:"anthropic_api_key_file"`
	OpenAICompatBaseURL    string `yaml:"openai_compat_base_url"`
	OpenAICompatAPIKey     string `yaml:"openai_compat_api_key"`
	OpenAICompatAPIKeyFile string `yaml:"openai_compat_api_key_file"`

	Entries []ModelEntry `yaml:"entries"`
}

// ModelEntry describes one row of the static model registry table.
type ModelEntry struct {
	ID              string `yaml:"id"`               // public model id, e.g. "claude-sonnet-4-responses"
	Provider        string `yaml:"provider"`         // "anthropic" or "openai-compat"
	UnderlyingModel string `yaml:"underlying_model"` // the name sent to the backend
	OwnedBy         string `yaml:"owned_by"`
}

// StorageConfig holds persistence settings. Absence of DatabaseURL is
// tolerated: the gateway then uses the in-memory store for the life of the
// process.
type StorageConfig struct {
	DatabaseURL     string `yaml:"database_url"`
	DatabaseURLFile string `yaml:"database_url_file"`
	MaxSize         int    `yaml:"max_size"`  // in-memory store capacity, default: 10000
	MaxConns        int32  `yaml:"max_conns"` // postgres pool size, default: 25
	MigrateOnStart  bool   `yaml:"migrate_on_start"`
}

// AuthConfig holds the Bearer-token allow-list plus an optional JWT/OIDC
// authenticator. An empty allow-list and unset JWKSURL together mean dev
// mode: any syntactically valid bearer token is accepted.
type AuthConfig struct {
	APIKeys     []string `yaml:"api_keys"`
	APIKeysFile string   `yaml:"api_keys_file"`

	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig configures an optional OIDC-style bearer-token authenticator,
// used instead of the static API-key allow-list when set. Leaving JWKSURL
// empty disables it.
type JWTConfig struct {
	JWKSURL     string `yaml:"jwks_url"`
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	ScopesClaim string `yaml:"scopes_claim"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Storage: StorageConfig{
			MaxSize:  10000,
			MaxConns: 25,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
