package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindRetryable(t *testing.T) {
	retryable := map[ErrorKind]bool{
		Timeout:          true,
		RateLimited:      true,
		ProviderError:    true,
		ServiceError:     true,
		ContentFiltered:  false,
		InvalidParameter: false,
		QuotaExhausted:   false,
		ModelNotFound:    false,
		AccessDenied:     false,
	}

	for kind, want := range retryable {
		assert.Equal(t, want, kind.Retryable(), kind.String())
	}
}

func TestAPIError(t *testing.T) {
	apiErr := NewAPIError(RateLimited, "alpha", "rate_limit_exceeded", http.StatusTooManyRequests, "slow down")

	assert.Contains(t, apiErr.Error(), "alpha")
	assert.Contains(t, apiErr.Error(), "slow down")

	cause := errors.New("429 from upstream")
	wrapped := apiErr.WithCause(cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestKindOf(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		err := NewAPIError(ContentFiltered, "alpha", "content_policy_violation", http.StatusBadRequest, "nope")
		assert.Equal(t, ContentFiltered, KindOf(err))
	})

	t.Run("wrapped api error", func(t *testing.T) {
		err := fmt.Errorf("calling provider: %w",
			NewAPIError(QuotaExhausted, "alpha", "insufficient_quota", http.StatusForbidden, "empty tank"))
		assert.Equal(t, QuotaExhausted, KindOf(err))
	})

	t.Run("deadline", func(t *testing.T) {
		assert.Equal(t, Timeout, KindOf(context.DeadlineExceeded))
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Equal(t, ProviderError, KindOf(errors.New("connection reset")))
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError(ServiceError, "alpha", "overloaded", http.StatusServiceUnavailable, "busy")))
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.False(t, IsRetryable(NewAPIError(AccessDenied, "alpha", "invalid_api_key", http.StatusUnauthorized, "who")))
}

func TestUsageResolve(t *testing.T) {
	t.Run("provider total wins", func(t *testing.T) {
		u := Usage{Input: 10, Output: 5, Total: 17}.Resolve()
		require.Equal(t, int64(17), u.Total, "a provider-reported total is canonical even when it disagrees with the parts")
	})

	t.Run("total derived when absent", func(t *testing.T) {
		u := Usage{Input: 10, Output: 5}.Resolve()
		assert.Equal(t, int64(15), u.Total)
	})
}
