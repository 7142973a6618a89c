package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/casualjim/aviary/provider"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var mr messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&mr))
		assert.Equal(t, "claude-sonnet", mr.Model)
		assert.Equal(t, "tell me a joke", mr.Messages[0].Content)
		assert.False(t, mr.Stream)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "a joke"}],
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	p := New("claude", "anthropic", "sk-test", WithBaseURL(server.URL))
	res, err := p.Complete(context.Background(), provider.Request{
		Model:  "claude-sonnet",
		Prompt: "tell me a joke",
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "a joke", res.Text)
	assert.Equal(t, provider.Usage{Input: 12, Output: 3, Total: 15}, res.Usage)
}

func TestCompleteClassifiesErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	p := New("claude", "anthropic", "sk-test", WithBaseURL(server.URL))
	res, err := p.Complete(context.Background(), provider.Request{Model: "claude-sonnet", Prompt: "hi"})

	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, provider.RateLimited, provider.KindOf(err))
}

func TestStreamEmitsTokensAndComplete(t *testing.T) {
	sse := "" +
		"event: message_start\n" +
		"data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":7}}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"hel\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n" +
		"event: message_delta\n" +
		"data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":2}}\n\n" +
		"event: message_stop\n" +
		"data: {\"type\":\"message_stop\"}\n\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sse))
	}))
	defer server.Close()

	p := New("claude", "anthropic", "sk-test", WithBaseURL(server.URL))
	events, err := p.Stream(context.Background(), provider.Request{Model: "claude-sonnet", Prompt: "hi"})
	require.NoError(t, err)

	var collected []provider.StreamEvent
	for ev := range events {
		collected = append(collected, ev)
	}

	require.Len(t, collected, 3)
	assert.Equal(t, "hel", collected[0].(provider.Token).Text)
	assert.Equal(t, "lo", collected[1].(provider.Token).Text)

	done, ok := collected[2].(provider.Complete)
	require.True(t, ok, "stream must end with a terminal event")
	assert.Equal(t, 2, done.TokenCount)
	assert.Equal(t, provider.Usage{Input: 7, Output: 2, Total: 9}, done.Usage)
}

func TestStreamErrorEvent(t *testing.T) {
	sse := "" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"par\"}}\n\n" +
		"event: error\n" +
		"data: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sse))
	}))
	defer server.Close()

	p := New("claude", "anthropic", "sk-test", WithBaseURL(server.URL))
	events, err := p.Stream(context.Background(), provider.Request{Model: "claude-sonnet", Prompt: "hi"})
	require.NoError(t, err)

	var collected []provider.StreamEvent
	for ev := range events {
		collected = append(collected, ev)
	}

	require.Len(t, collected, 2)
	failure, ok := collected[1].(provider.Error)
	require.True(t, ok)
	assert.Equal(t, provider.ServiceError, failure.Kind())
}

func TestStreamRejectedUpFront(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
	}))
	defer server.Close()

	p := New("claude", "anthropic", "bad-key", WithBaseURL(server.URL))
	_, err := p.Stream(context.Background(), provider.Request{Model: "claude-sonnet", Prompt: "hi"})

	require.Error(t, err)
	assert.Equal(t, provider.AccessDenied, provider.KindOf(err))
}

func TestBuildRequestDefaults(t *testing.T) {
	p := New("claude", "anthropic", "sk-test")

	mr := p.buildRequest(provider.Request{Model: "claude-sonnet", Prompt: "hi"}, false)
	assert.Equal(t, int64(defaultMaxTokens), mr.MaxTokens)
	assert.Nil(t, mr.Temperature)

	mr = p.buildRequest(provider.Request{Model: "claude-sonnet", Prompt: "hi", Temperature: 0.7, MaxTokens: 100}, true)
	assert.Equal(t, int64(100), mr.MaxTokens)
	require.NotNil(t, mr.Temperature)
	assert.Equal(t, 0.7, *mr.Temperature)
	assert.True(t, mr.Stream)
}
