// Package aviary orchestrates calls across multiple LLM providers behind a
// single façade.
//
// The Engine owns the shared machinery every call needs: a registry of
// provider clients, a sliding window rate limiter per platform, a circuit
// breaker per provider, and a retry policy that knows which error kinds are
// worth another attempt. Call and Stream run one provider through that
// pipeline; CallAll, CallFirst, CallProgressive and StreamAll fan a request
// out across several.
//
// Provider clients live under the provider subpackages (openai, anthropic,
// gemini) and share the taxonomy in the provider package, so the engine
// treats every backend's failures uniformly. Token usage flows out through
// a pluggable tracker in the usage package. The suggest package builds on
// Stream to aggregate concurrent token streams into deduplicated,
// fair-ordered suggestion lines.
package aviary
