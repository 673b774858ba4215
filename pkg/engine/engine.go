package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkeane/openresponses/pkg/api"
	"github.com/mkeane/openresponses/pkg/observability"
	"github.com/mkeane/openresponses/pkg/provider"
	"github.com/mkeane/openresponses/pkg/transport"
)

// Resolver looks up the provider adapter and the backend-facing model name
// for a public model id. Deployments with a single configured backend can
// satisfy this with a resolver that ignores the id and always returns the
// same provider.
type Resolver interface {
	Resolve(modelID string) (provider.Provider, string, error)
}

// Engine orchestrates request processing between the transport layer and
// the provider backend. It implements transport.ResponseCreator.
type Engine struct {
	resolver Resolver
	store    transport.ResponseStore
	cfg      Config
	logger   *slog.Logger
}

// Ensure Engine implements transport.ResponseCreator at compile time.
var _ transport.ResponseCreator = (*Engine)(nil)

// New creates a new Engine. The resolver must not be nil. The store can be
// nil, in which case conversation chaining, background mode, and store=true
// requests are all unavailable.
func New(resolver Resolver, store transport.ResponseStore, cfg Config, logger *slog.Logger) (*Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("engine: resolver must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{resolver: resolver, store: store, cfg: cfg, logger: logger}, nil
}

// CreateResponse validates and assembles the request, then dispatches to the
// synchronous, streaming, or background path.
func (e *Engine) CreateResponse(ctx context.Context, req *api.CreateResponseRequest, w transport.ResponseWriter) error {
	if req.Model == "" {
		if e.cfg.DefaultModel == "" {
			return api.NewInvalidRequestError("model", "model is required")
		}
		req.Model = e.cfg.DefaultModel
	}

	if apiErr := api.ValidateRequest(req, api.DefaultValidationConfig()); apiErr != nil {
		return apiErr
	}
	if apiErr := api.ValidateStatelessConstraints(req); apiErr != nil {
		return apiErr
	}

	store := api.ResolveStore(req)
	if store && e.store == nil {
		return api.NewInvalidRequestError("store", "this deployment has no response store configured; set store=false")
	}

	adapter, backendModel, err := e.resolver.Resolve(req.Model)
	if err != nil {
		return api.NewInvalidRequestError("model", fmt.Sprintf("unknown model %q", req.Model))
	}

	if apiErr := provider.ValidateCapabilities(adapter.Capabilities(), req); apiErr != nil {
		return apiErr
	}

	var respStore transport.ResponseStore
	if store {
		respStore = e.store
	}
	items, err := resolveInputItems(ctx, respStore, req)
	if err != nil {
		return err
	}

	provReq := translateRequest(req, items)
	provReq.Model = backendModel

	if req.Background && store {
		return e.runBackground(ctx, req, provReq, adapter, items, w)
	}
	if req.Stream {
		return e.runStreaming(ctx, req, provReq, adapter, items, store, w)
	}
	return e.runSync(ctx, req, provReq, adapter, items, store, w)
}

// runSync invokes the provider synchronously and writes the completed
// response.
func (e *Engine) runSync(ctx context.Context, req *api.CreateResponseRequest, provReq *provider.ProviderRequest, adapter provider.Provider, items []api.Item, store bool, w transport.ResponseWriter) error {
	provResp, err := adapter.Complete(ctx, provReq)
	if err != nil {
		return err
	}
	if provResp.Status == api.ResponseStatusFailed && len(provResp.Items) == 0 {
		return api.NewServerError("backend produced no output")
	}

	resp := e.buildResponse(req, provResp.Status, moveReasoningToHead(provResp.Items), &provResp.Usage, items)
	now := time.Now().Unix()
	resp.CompletedAt = &now

	if store {
		if err := e.store.UpsertResponse(ctx, resp); err != nil {
			return err
		}
		observability.ResponsesPersistedTotal.WithLabelValues(string(resp.Status)).Inc()
	}
	return w.WriteResponse(ctx, resp)
}

// runStreaming opens the provider's streaming channel and projects its
// events onto the wire while periodically checkpointing accumulated output.
func (e *Engine) runStreaming(ctx context.Context, req *api.CreateResponseRequest, provReq *provider.ProviderRequest, adapter provider.Provider, items []api.Item, store bool, w transport.ResponseWriter) error {
	resp := e.buildResponse(req, api.ResponseStatusInProgress, nil, nil, items)
	respID := resp.ID
	createdAt := resp.CreatedAt

	ch, err := adapter.Stream(ctx, provReq)
	if err != nil {
		return err
	}

	proj := newStreamProjector()
	writeEvent := func(ev api.StreamEvent) error {
		return w.WriteEvent(ctx, ev)
	}

	if store {
		if err := e.store.UpsertResponse(ctx, resp); err != nil {
			e.logger.Error("failed to persist initial streaming response", "response_id", respID, "error", err)
		}
	}

	if err := writeEvent(api.StreamEvent{
		Type:           api.EventResponseInProgress,
		SequenceNumber: proj.NextSeq(),
		Response:       resp,
	}); err != nil {
		return err
	}

	lastCheckpoint := time.Now()
	checkpoint := func() {
		if !store || time.Since(lastCheckpoint) < e.cfg.checkpointInterval() {
			return
		}
		lastCheckpoint = time.Now()
		if err := e.store.PartialUpdateOutput(ctx, respID, proj.Output(false), nil); err != nil {
			e.logger.Error("failed to checkpoint streaming response", "response_id", respID, "error", err)
		}
	}

	var usage *api.Usage
	finalStatus := api.ResponseStatusCompleted
	var streamErr error

loop:
	for {
		select {
		case <-ctx.Done():
			streamErr = ctx.Err()
			break loop
		case ev, ok := <-ch:
			if !ok {
				break loop
			}
			if ev.Err != nil {
				streamErr = ev.Err
				break loop
			}

			var events []api.StreamEvent
			switch ev.Type {
			case provider.ProviderEventTextDelta:
				events = proj.TextDelta(ev.Delta)
			case provider.ProviderEventToolCallDelta:
				events = append(events, proj.ToolCallStart(ev.ToolCallIndex, ev.ToolCallID, ev.FunctionName)...)
				proj.ToolCallDelta(ev.ToolCallIndex, ev.Delta)
			case provider.ProviderEventToolCallDone:
				events = append(events, proj.ToolCallStart(ev.ToolCallIndex, ev.ToolCallID, ev.FunctionName)...)
				events = append(events, proj.ToolCallDone(ev.ToolCallIndex, ev.Delta)...)
			case provider.ProviderEventReasoningDelta:
				proj.ReasoningDelta(ev.Delta)
			case provider.ProviderEventDone:
				if ev.Usage != nil {
					usage = ev.Usage
				}
				if ev.Item != nil && ev.Item.Status == api.ItemStatusIncomplete {
					finalStatus = api.ResponseStatusIncomplete
				}
			}

			for _, e2 := range events {
				if err := writeEvent(e2); err != nil {
					return err
				}
			}
			checkpoint()
		}
	}

	if streamErr != nil {
		return e.finishStreamError(ctx, streamErr, req, respID, createdAt, items, proj, store, writeEvent)
	}

	for _, ev := range proj.FinalizeMessage() {
		if err := writeEvent(ev); err != nil {
			return err
		}
	}

	final := e.buildResponse(req, finalStatus, moveReasoningToHead(proj.Output(true)), usage, items)
	final.ID = respID
	final.CreatedAt = createdAt
	now := time.Now().Unix()
	final.CompletedAt = &now
	if finalStatus == api.ResponseStatusIncomplete {
		final.IncompleteDetails = &api.IncompleteDetails{Reason: "max_output_tokens"}
	}

	if store {
		if err := e.store.UpsertResponse(ctx, final); err != nil {
			return err
		}
		observability.ResponsesPersistedTotal.WithLabelValues(string(final.Status)).Inc()
	}

	return writeEvent(api.StreamEvent{
		Type:           api.EventResponseCompleted,
		SequenceNumber: proj.NextSeq(),
		Response:       final,
	})
}

// finishStreamError handles both user-initiated cancellation (context
// cancelled) and upstream provider errors. Cancellation persists whatever
// output was accumulated so far as incomplete; other errors emit an error
// event followed by response.failed.
func (e *Engine) finishStreamError(ctx context.Context, streamErr error, req *api.CreateResponseRequest, respID string, createdAt int64, items []api.Item, proj *streamProjector, store bool, writeEvent func(api.StreamEvent) error) error {
	if ctx.Err() != nil {
		// No further typed events are written after cancellation.
		resp := e.buildResponse(req, api.ResponseStatusIncomplete, moveReasoningToHead(proj.Output(false)), nil, items)
		resp.ID = respID
		resp.CreatedAt = createdAt
		resp.IncompleteDetails = &api.IncompleteDetails{Reason: "interrupted"}

		if store {
			// The request's own context is already cancelled.
			if err := e.store.UpsertResponse(context.Background(), resp); err != nil {
				e.logger.Error("failed to persist cancelled response", "response_id", respID, "error", err)
			} else {
				observability.ResponsesPersistedTotal.WithLabelValues(string(resp.Status)).Inc()
			}
		}
		return ctx.Err()
	}

	apiErr := api.NewServerError(streamErr.Error())
	_ = writeEvent(api.StreamEvent{
		Type:           api.EventError,
		SequenceNumber: proj.NextSeq(),
		Error:          &api.StreamError{Type: apiErr.Type, Message: apiErr.Message},
	})

	failed := e.buildResponse(req, api.ResponseStatusFailed, nil, nil, items)
	failed.ID = respID
	failed.CreatedAt = createdAt
	failed.Error = apiErr

	if store {
		if err := e.store.UpsertResponse(ctx, failed); err != nil {
			e.logger.Error("failed to persist failed response", "response_id", respID, "error", err)
		} else {
			observability.ResponsesPersistedTotal.WithLabelValues(string(failed.Status)).Inc()
		}
	}

	_ = writeEvent(api.StreamEvent{
		Type:           api.EventResponseFailed,
		SequenceNumber: proj.NextSeq(),
		Response:       failed,
	})
	return streamErr
}

// runBackground persists an initial in_progress row, responds immediately
// with it, and runs the provider call afterward to write the terminal state.
// Only reachable when both background and store are true.
func (e *Engine) runBackground(ctx context.Context, req *api.CreateResponseRequest, provReq *provider.ProviderRequest, adapter provider.Provider, items []api.Item, w transport.ResponseWriter) error {
	resp := e.buildResponse(req, api.ResponseStatusInProgress, nil, nil, items)
	if err := e.store.UpsertResponse(ctx, resp); err != nil {
		return err
	}
	if err := w.WriteResponse(ctx, resp); err != nil {
		return err
	}

	respID := resp.ID
	createdAt := resp.CreatedAt
	// Detach from the request context: the HTTP response has already been
	// written, and the caller may disconnect at any moment.
	bgCtx := context.WithoutCancel(ctx)

	go func() {
		provResp, err := adapter.Complete(bgCtx, provReq)
		if err != nil {
			e.logger.Error("background response failed", "response_id", respID, "error", err)
			failed := e.buildResponse(req, api.ResponseStatusFailed, nil, nil, items)
			failed.ID = respID
			failed.CreatedAt = createdAt
			failed.Error = api.NewServerError(err.Error())
			if err := e.store.UpsertResponse(bgCtx, failed); err != nil {
				e.logger.Error("failed to persist failed background response", "response_id", respID, "error", err)
			} else {
				observability.ResponsesPersistedTotal.WithLabelValues(string(failed.Status)).Inc()
			}
			return
		}

		final := e.buildResponse(req, provResp.Status, moveReasoningToHead(provResp.Items), &provResp.Usage, items)
		final.ID = respID
		final.CreatedAt = createdAt
		now := time.Now().Unix()
		final.CompletedAt = &now

		if err := e.store.UpsertResponse(bgCtx, final); err != nil {
			e.logger.Error("failed to persist completed background response", "response_id", respID, "error", err)
		} else {
			observability.ResponsesPersistedTotal.WithLabelValues(string(final.Status)).Inc()
		}
	}()

	return nil
}

// buildResponse assembles a Response envelope from the request and its
// resolved input, the given status, output items, and usage.
func (e *Engine) buildResponse(req *api.CreateResponseRequest, status api.ResponseStatus, output []api.Item, usage *api.Usage, input []api.Item) *api.Response {
	var prevID *string
	if req.PreviousResponseID != "" {
		id := req.PreviousResponseID
		prevID = &id
	}
	var instructions *string
	if req.Instructions != "" {
		instructions = &req.Instructions
	}

	return &api.Response{
		ID:                 api.NewResponseID(),
		Object:             "response",
		CreatedAt:          time.Now().Unix(),
		Status:             status,
		Model:              req.Model,
		PreviousResponseID: prevID,
		Instructions:       instructions,
		Input:              input,
		Output:             output,
		Tools:              req.Tools,
		ParallelToolCalls:  req.ParallelToolCalls != nil && *req.ParallelToolCalls,
		Truncation:         req.Truncation,
		Reasoning:          req.Reasoning,
		Text:               req.Text,
		Usage:              usage,
		MaxOutputTokens:    req.MaxOutputTokens,
		MaxToolCalls:       req.MaxToolCalls,
		Store:              api.ResolveStore(req),
		Background:         req.Background,
		ServiceTier:        req.ServiceTier,
		Metadata:           req.Metadata,
		User:               req.User,
	}
}

// moveReasoningToHead reorders items so that any reasoning item comes first,
// preserving the relative order of everything else. Provider adapters
// already emit reasoning first for a single Complete() call; the engine
// enforces the order again here since streaming accumulates reasoning out of
// band from the message and tool-call items.
func moveReasoningToHead(items []api.Item) []api.Item {
	var reasoning []api.Item
	var rest []api.Item
	for _, it := range items {
		if it.Type == api.ItemTypeReasoning {
			reasoning = append(reasoning, it)
		} else {
			rest = append(rest, it)
		}
	}
	if len(reasoning) == 0 {
		return rest
	}
	return append(reasoning, rest...)
}
