package api

import "fmt"

// ValidateResponseTransition checks whether a response status transition is
// valid. An empty "from" status represents the initial state before any
// status has been set. Terminal states (completed, failed, cancelled,
// incomplete) do not allow outgoing transitions — the first writer to reach
// a terminal status wins and every subsequent write is rejected here.
func ValidateResponseTransition(from, to ResponseStatus) *APIError {
	valid := map[ResponseStatus][]ResponseStatus{
		"":                     {ResponseStatusQueued, ResponseStatusInProgress},
		ResponseStatusQueued:   {ResponseStatusInProgress, ResponseStatusCancelled},
		ResponseStatusInProgress: {
			ResponseStatusCompleted,
			ResponseStatusFailed,
			ResponseStatusCancelled,
			ResponseStatusIncomplete,
		},
		ResponseStatusCompleted:  {}, // terminal
		ResponseStatusFailed:     {}, // terminal
		ResponseStatusCancelled:  {}, // terminal
		ResponseStatusIncomplete: {}, // terminal
	}

	allowed, exists := valid[from]
	if !exists {
		return NewInvalidRequestError("status",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}

// ValidateItemTransition checks whether an item status transition is valid.
// An empty "from" status represents the initial state before any status has
// been set. Terminal states (completed, incomplete, failed) do not allow
// outgoing transitions.
func ValidateItemTransition(from, to ItemStatus) *APIError {
	valid := map[ItemStatus][]ItemStatus{
		"":                   {ItemStatusInProgress, ItemStatusCompleted},
		ItemStatusInProgress: {ItemStatusCompleted, ItemStatusIncomplete, ItemStatusFailed},
	}

	allowed, exists := valid[from]
	if !exists {
		return NewInvalidRequestError("status",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
