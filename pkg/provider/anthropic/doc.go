// Package anthropic implements provider.Provider against the Anthropic
// Messages API (POST /v1/messages, including its "stream": true SSE variant).
//
// Unlike the Chat Completions wire format, Anthropic messages carry content
// as a block array (text, tool_use, tool_result), system prompt is a
// top-level field rather than a message with role "system", and streaming
// uses named SSE events (message_start, content_block_start/delta/stop,
// message_delta, message_stop) instead of repeated full-message deltas.
package anthropic
