package provider

import (
	"net/http"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestTokenJSON(t *testing.T) {
	tok := Token{Provider: "alpha", Text: "hello"}

	data, err := json.Marshal(tok)
	require.NoError(t, err)
	assert.Equal(t, "token", gjson.GetBytes(data, "type").String())
	assert.Equal(t, "alpha", gjson.GetBytes(data, "provider").String())

	var back Token
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tok.Provider, back.Provider)
	assert.Equal(t, tok.Text, back.Text)
}

func TestTokenUnmarshalRejectsWrongType(t *testing.T) {
	var tok Token
	err := json.Unmarshal([]byte(`{"type":"complete","provider":"alpha","text":"x"}`), &tok)
	assert.Error(t, err)
}

func TestCompleteJSON(t *testing.T) {
	done := Complete{
		Provider:   "alpha",
		Duration:   1200 * time.Millisecond,
		TokenCount: 42,
		Usage:      Usage{Input: 10, Output: 32, Total: 42},
	}

	data, err := json.Marshal(done)
	require.NoError(t, err)
	assert.Equal(t, "complete", gjson.GetBytes(data, "type").String())
	assert.Equal(t, int64(42), gjson.GetBytes(data, "usage.total").Int())

	var back Complete
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, done.Duration, back.Duration)
	assert.Equal(t, done.Usage, back.Usage)
}

func TestErrorJSON(t *testing.T) {
	ev := Error{
		Provider: "alpha",
		Err:      NewAPIError(RateLimited, "alpha", "rate_limit_exceeded", http.StatusTooManyRequests, "slow down"),
		Elapsed:  300 * time.Millisecond,
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Equal(t, "error", gjson.GetBytes(data, "type").String())
	assert.Equal(t, "rate_limited", gjson.GetBytes(data, "kind").String())

	var back Error
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "alpha", back.Provider)
	assert.Contains(t, back.Err.Error(), "slow down")
}

func TestErrorKindAccessor(t *testing.T) {
	ev := Error{Err: NewAPIError(ContentFiltered, "alpha", "moderation_blocked", http.StatusBadRequest, "nope")}
	assert.Equal(t, ContentFiltered, ev.Kind())
	assert.False(t, ev.Kind().Retryable())
}

func TestStreamEventDispatch(t *testing.T) {
	events := []StreamEvent{
		Token{Provider: "alpha", Text: "a"},
		Complete{Provider: "alpha", TokenCount: 1},
		Error{Provider: "bravo", Err: assert.AnError},
	}

	var tokens, completes, errors int
	for _, ev := range events {
		switch ev.(type) {
		case Token:
			tokens++
		case Complete:
			completes++
		case Error:
			errors++
		}
	}
	assert.Equal(t, []int{1, 1, 1}, []int{tokens, completes, errors})
}
