// Package provider implements an abstraction layer for interacting with LLM
// backends (OpenAI, Anthropic, Gemini, and OpenAI-compatible services) in a
// consistent way. It defines the single-backend contract the orchestration
// engine builds on, while the provider-specific subpackages handle each
// backend's wire protocol and error vocabulary.
//
// Design decisions:
//   - Provider abstraction: a single interface that different backends implement
//   - Streaming first: a stream is one receive-only channel of tagged events;
//     the channel closes after a single terminal Complete or Error event
//   - Closed error taxonomy: every backend's native error vocabulary converges
//     on the nine-member ErrorKind enum, carried by APIError together with the
//     native code for diagnostics
//   - Retryability lives on the kind, not the provider: clients classify,
//     the retry engine decides
//
// The streaming architecture uses three event types:
//  1. Token: an incremental text fragment
//  2. Complete: terminal success with duration and token usage
//  3. Error: terminal failure with the classified error
//
// Example usage:
//
//	events, err := client.Stream(ctx, provider.Request{
//	    Prompt: "name three birds",
//	    Model:  "gpt-4o-mini",
//	})
//	if err != nil {
//	    return err
//	}
//
//	for event := range events {
//	    switch e := event.(type) {
//	    case provider.Token:
//	        // handle incremental text
//	    case provider.Complete:
//	        // handle terminal usage
//	    case provider.Error:
//	        // handle classified failure
//	    }
//	}
package provider
