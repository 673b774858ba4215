package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// storage.database_url is optional: its absence just means the in-memory
	// store is used.
	if c.Storage.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("storage.max_size must be > 0, got %d", c.Storage.MaxSize))
	}

	// Each registry entry must name a supported provider and a non-empty id.
	for i, e := range c.Models.Entries {
		if e.ID == "" {
			errs = append(errs, fmt.Errorf("models.entries[%d].id is required", i))
		}
		switch e.Provider {
		case "anthropic", "openai-compat":
			// valid
		default:
			errs = append(errs, fmt.Errorf("models.entries[%d].provider must be \"anthropic\" or \"openai-compat\", got %q", i, e.Provider))
		}
		if e.UnderlyingModel == "" {
			errs = append(errs, fmt.Errorf("models.entries[%d].underlying_model is required", i))
		}
	}

	return errors.Join(errs...)
}
