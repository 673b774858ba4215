package engine

import (
	"context"
	"errors"

	"github.com/mkeane/openresponses/pkg/api"
	"github.com/mkeane/openresponses/pkg/storage"
	"github.com/mkeane/openresponses/pkg/transport"
)

// resolveInputItems builds the normalized item list for a request: the seed
// from a previous response (if chained) followed by the request's own input,
// with item_reference entries resolved against that seed and otherwise
// silently dropped.
//
// A stored response's Input field already holds the fully-flattened
// ancestor history, since it was itself built by this same function when
// that response was created. So only the immediate previous response needs
// to be loaded — there is no need to walk the chain hop by hop.
func resolveInputItems(ctx context.Context, store transport.ResponseStore, req *api.CreateResponseRequest) ([]api.Item, error) {
	var seed []api.Item

	if req.PreviousResponseID != "" {
		if store == nil {
			return nil, api.NewInvalidRequestError("previous_response_id", "conversation chaining requires a response store")
		}

		prev, err := store.GetResponse(ctx, req.PreviousResponseID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, api.NewNotFoundError("response " + req.PreviousResponseID + " not found")
			}
			return nil, err
		}
		if !prev.Store {
			return nil, api.NewInvalidRequestError("previous_response_id", "response "+req.PreviousResponseID+" was not stored and cannot be chained from")
		}

		seed = append(seed, prev.Input...)
		seed = append(seed, prev.Output...)
	}

	seedIDs := make(map[string]bool, len(seed))
	for _, it := range seed {
		if it.ID != "" {
			seedIDs[it.ID] = true
		}
	}

	items := make([]api.Item, 0, len(seed)+len(req.Input))
	items = append(items, seed...)

	for _, it := range req.Input {
		if it.Type == api.ItemTypeItemReference {
			id := it.ID
			if it.ItemReference != nil {
				id = it.ItemReference.ID
			}
			if seedIDs[id] {
				items = append(items, it)
			}
			continue
		}
		items = append(items, it)
	}

	return items, nil
}
