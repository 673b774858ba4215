package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CONFIG_FILE env, ./config.yaml, /etc/openresponses/config.yaml)
//  3. Environment variable overrides (including _FILE env vars)
//  4. File reference resolution (_file YAML fields)
//  5. Default model-registry synthesis
//  6. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Environment variables always win over the YAML file.
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	// Resolve remaining _file YAML references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	applyDefaultModelEntries(&cfg)

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CONFIG_FILE environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/openresponses/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("CONFIG_FILE"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/openresponses/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps the environment variables this gateway binds into
// config fields. Each one may be supplied directly or, per the secret-mount
// pattern, as "<NAME>_FILE" pointing at a file holding the value.
func applyEnvOverrides(cfg *Config) error {
	if v, ok, err := envOrFile("PORT"); err != nil {
		return err
	} else if ok {
		port, convErr := strconv.Atoi(v)
		if convErr != nil {
			return fmt.Errorf("PORT: %w", convErr)
		}
		cfg.Server.Port = port
	}

	if v, ok, err := envOrFile("DATABASE_URL"); err != nil {
		return err
	} else if ok {
		cfg.Storage.DatabaseURL = v
	}

	if v, ok, err := envOrFile("ANTHROPIC_API_KEY"); err != nil {
		return err
	} else if ok {
		cfg.Models.AnthropicAPIKey = v
	}

	if v, ok, err := envOrFile("OPENAI_COMPAT_BASE_URL"); err != nil {
		return err
	} else if ok {
		cfg.Models.OpenAICompatBaseURL = v
	}

	if v, ok, err := envOrFile("OPENAI_COMPAT_API_KEY"); err != nil {
		return err
	} else if ok {
		cfg.Models.OpenAICompatAPIKey = v
	}

	if v, ok, err := envOrFile("API_KEYS"); err != nil {
		return err
	} else if ok {
		cfg.Auth.APIKeys = splitCSV(v)
	}

	if v := os.Getenv("JWT_JWKS_URL"); v != "" {
		cfg.Auth.JWT.JWKSURL = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.Auth.JWT.Issuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.Auth.JWT.Audience = v
	}

	return nil
}

// envOrFile reads the named environment variable, falling back to reading
// "<name>_FILE" as a path to a file containing the value. Returns ok=false
// if neither is set.
func envOrFile(name string) (string, bool, error) {
	if v := os.Getenv(name); v != "" {
		return v, true, nil
	}
	if path := os.Getenv(name + "_FILE"); path != "" {
		val, err := readSecretFile(path)
		if err != nil {
			return "", false, fmt.Errorf("%s_FILE: %w", name, err)
		}
		return val, true, nil
	}
	return "", false, nil
}

// splitCSV splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields, for settings supplied via the YAML file rather than the
// environment. If the value field is already set (by YAML or by an env
// override), the file reference is ignored.
func resolveFileReferences(cfg *Config) error {
	if cfg.Models.AnthropicAPIKeyFile != "" && cfg.Models.AnthropicAPIKey == "" {
		val, err := readSecretFile(cfg.Models.AnthropicAPIKeyFile)
		if err != nil {
			return fmt.Errorf("models.anthropic_api_key_file: %w", err)
		}
		cfg.Models.AnthropicAPIKey = val
	}

	if cfg.Models.OpenAICompatAPIKeyFile != "" && cfg.Models.OpenAICompatAPIKey == "" {
		val, err := readSecretFile(cfg.Models.OpenAICompatAPIKeyFile)
		if err != nil {
			return fmt.Errorf("models.openai_compat_api_key_file: %w", err)
		}
		cfg.Models.OpenAICompatAPIKey = val
	}

	if cfg.Storage.DatabaseURLFile != "" && cfg.Storage.DatabaseURL == "" {
		val, err := readSecretFile(cfg.Storage.DatabaseURLFile)
		if err != nil {
			return fmt.Errorf("storage.database_url_file: %w", err)
		}
		cfg.Storage.DatabaseURL = val
	}

	if cfg.Auth.APIKeysFile != "" && len(cfg.Auth.APIKeys) == 0 {
		val, err := readSecretFile(cfg.Auth.APIKeysFile)
		if err != nil {
			return fmt.Errorf("auth.api_keys_file: %w", err)
		}
		cfg.Auth.APIKeys = splitCSV(val)
	}

	return nil
}

// applyDefaultModelEntries synthesizes one registry entry per configured
// backend when the config didn't name any explicit entries. This keeps a
// bare env-var deployment (just ANTHROPIC_API_KEY, say) usable without
// requiring a YAML file to name models by hand.
func applyDefaultModelEntries(cfg *Config) {
	if len(cfg.Models.Entries) > 0 {
		return
	}

	var entries []ModelEntry
	if cfg.Models.AnthropicAPIKey != "" {
		entries = append(entries, ModelEntry{
			ID:              "claude-sonnet-4-responses",
			Provider:        "anthropic",
			UnderlyingModel: "claude-sonnet-4-20250514",
			OwnedBy:         "anthropic",
		})
	}
	if cfg.Models.OpenAICompatBaseURL != "" {
		entries = append(entries, ModelEntry{
			ID:              "llama-3.1-70b-responses",
			Provider:        "openai-compat",
			UnderlyingModel: "llama-3.1-70b-instruct",
			OwnedBy:         "openai-compat",
		})
	}
	cfg.Models.Entries = entries
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
