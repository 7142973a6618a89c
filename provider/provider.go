package provider

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Provider is the contract a single LLM backend has to fulfill. An
// implementation knows how to issue one blocking call or one token stream to
// exactly one backend, and how to translate that backend's native error
// vocabulary into an *APIError. It never decides retryability itself.
type Provider interface {
	// Name returns the logical provider name, e.g. "openai" or "anthropic".
	Name() string

	// Platform returns the billing/quota boundary this provider belongs to.
	// Several providers may share one platform when the backend bills them
	// jointly; admission control applies at this level.
	Platform() string

	// Complete issues a single request/response call.
	Complete(ctx context.Context, req Request) (Result, error)

	// Stream issues a streaming call. The returned channel carries Token
	// events followed by exactly one terminal event (Complete or Error) and
	// is closed afterwards. On early stream termination implementations must
	// still attempt to surface trailing usage data before completing.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Meta carries opaque tracking metadata attached by the caller. It travels
// with the request and is echoed into usage records, it never influences the
// call itself.
type Meta struct {
	// CallerID identifies the logical caller (user, agent, session).
	CallerID uuid.UUID

	// Category labels the request for accounting, e.g. "diagram" or "tutor".
	Category string
}

// Request describes one logical model call. It is passed by value and
// treated as immutable once constructed.
type Request struct {
	// Prompt is the user-facing prompt text.
	Prompt string

	// Model is the logical model name used to look up a client in the
	// registry; it is also the model id sent on the wire.
	Model string

	// System is an optional system message.
	System string

	// Temperature is the sampling temperature. Zero means provider default.
	Temperature float64

	// MaxTokens bounds the generated output. Zero means provider default.
	MaxTokens int64

	// Timeout bounds a single attempt, not the logical call. Zero means the
	// engine's default timeout.
	Timeout time.Duration

	// Meta is opaque tracking metadata.
	Meta Meta
}

// Usage is the token accounting triple for one call.
type Usage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// Resolve applies the canonical total rule: prefer the provider-reported
// total, else the sum of input and output. The provider total is
// authoritative even when it exceeds input+output, since some backends add
// accounting overhead on their side.
func (u Usage) Resolve() Usage {
	if u.Total == 0 {
		u.Total = u.Input + u.Output
	}
	return u
}

// Result is the outcome of a single completed attempt. Callers of the retry
// engine only ever observe the result of the last attempt.
type Result struct {
	// Text is the generated output.
	Text string

	// Usage is the token accounting for this call, already resolved.
	Usage Usage

	// Duration is the wall-clock time of the attempt.
	Duration time.Duration

	// Success reports whether the attempt succeeded.
	Success bool

	// Err carries the attempt's error when Success is false.
	Err error
}
