// Package anthropic implements the provider contract for Anthropic's
// Messages API. The client is hand rolled over net/http because the wire
// format is small and stable: one request shape, SSE for streaming, and a
// typed error envelope mapped onto the engine's taxonomy in errors.go.
package anthropic
