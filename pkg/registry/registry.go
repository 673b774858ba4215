// Package registry implements the model-to-adapter lookup table described
// by pkg/config's model registry: a small, statically configured set
// of entries built once at startup, each naming a public model id, the
// provider adapter that serves it, and the adapter-facing model name.
// Registering a new model is a configuration change, never a code change.
package registry

import (
	"fmt"
	"sort"

	"github.com/mkeane/openresponses/pkg/api"
	"github.com/mkeane/openresponses/pkg/provider"
)

// Entry binds one public model id to the adapter and underlying model name
// that serve it.
type Entry struct {
	// ID is the public model id clients pass as CreateResponseRequest.Model.
	ID string
	// Adapter is the provider instance backing this model. Adapter
	// instances are shared across entries that route to the same backend.
	Adapter provider.Provider
	// UnderlyingModel is the model name forwarded to the adapter, which may
	// differ from the public id (e.g. a friendlier public alias).
	UnderlyingModel string
	// OwnedBy is echoed in the model listing (e.g. "anthropic", "openai").
	OwnedBy string
	// Created is the Unix timestamp echoed in the model listing.
	Created int64
}

// Registry is a static, in-process lookup table from public model id to
// provider adapter.
type Registry struct {
	entries map[string]Entry
}

// New builds a Registry from a fixed set of entries. Duplicate ids overwrite
// earlier entries with the same id.
func New(entries []Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return r
}

// Resolve looks up the provider adapter and underlying model name for a
// public model id. Satisfies engine.Resolver.
func (r *Registry) Resolve(modelID string) (provider.Provider, string, error) {
	e, ok := r.entries[modelID]
	if !ok {
		return nil, "", fmt.Errorf("unknown model %q", modelID)
	}
	return e.Adapter, e.UnderlyingModel, nil
}

// Get returns the registry entry for a public model id as a wire-format
// ModelSummary, for GET /v1/models/{id}.
func (r *Registry) Get(modelID string) (api.ModelSummary, bool) {
	e, ok := r.entries[modelID]
	if !ok {
		return api.ModelSummary{}, false
	}
	return toSummary(e), true
}

// List returns every registered entry as a wire-format ModelSummary, sorted
// by id for a deterministic response, for GET /v1/models.
func (r *Registry) List() []api.ModelSummary {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	summaries := make([]api.ModelSummary, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, toSummary(r.entries[id]))
	}
	return summaries
}

func toSummary(e Entry) api.ModelSummary {
	return api.ModelSummary{
		ID:      e.ID,
		Object:  "model",
		Created: e.Created,
		OwnedBy: e.OwnedBy,
	}
}
