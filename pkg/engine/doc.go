// Package engine implements the core request orchestration for the gateway.
// The Engine struct implements transport.ResponseCreator, bridging incoming
// OpenResponses API requests to provider backends. It handles conversation
// history reconstruction, request translation, provider invocation,
// streaming event projection, and the synchronous, streaming, and
// background response-creation paths. A nil response store degrades the
// engine to stateless-only operation: conversation chaining and background
// mode both require storage and are rejected otherwise.
package engine
