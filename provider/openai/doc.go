// Package openai implements the provider contract for OpenAI's chat
// completions API and OpenAI-compatible backends (DeepSeek, Qwen/DashScope)
// reached through a custom base URL. The family shares one wire format and
// one error vocabulary, mapped onto the engine's taxonomy in errors.go.
package openai
