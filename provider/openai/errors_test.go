package openai

import (
	"net/http"
	"testing"

	"github.com/casualjim/aviary/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyKnownCodes(t *testing.T) {
	cases := []struct {
		code   string
		status int
		want   provider.ErrorKind
	}{
		{"invalid_api_key", http.StatusUnauthorized, provider.AccessDenied},
		{"account_deactivated", http.StatusForbidden, provider.AccessDenied},
		{"insufficient_quota", http.StatusTooManyRequests, provider.QuotaExhausted},
		{"arrearage", http.StatusForbidden, provider.QuotaExhausted},
		{"rate_limit_exceeded", http.StatusTooManyRequests, provider.RateLimited},
		{"throttling", http.StatusTooManyRequests, provider.RateLimited},
		{"model_not_found", http.StatusNotFound, provider.ModelNotFound},
		{"context_length_exceeded", http.StatusBadRequest, provider.InvalidParameter},
		{"engine_overloaded", http.StatusServiceUnavailable, provider.ServiceError},
		{"request_timeout", http.StatusGatewayTimeout, provider.Timeout},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			apiErr := Classify("deepseek", tc.status, tc.code, "raw upstream message")
			assert.Equal(t, tc.want, apiErr.Kind)
			assert.Equal(t, "deepseek", apiErr.Provider)
			assert.Equal(t, tc.code, apiErr.Code)
			assert.Equal(t, tc.status, apiErr.HTTPStatus)
		})
	}
}

func TestClassifyContentSafetyBeatsStatus(t *testing.T) {
	// Content safety codes arrive under a grab bag of HTTP statuses. The
	// kind must be ContentFiltered in every case.
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusTooManyRequests} {
		apiErr := Classify("qwen", status, "data_inspection_failed", "inspection failed")
		assert.Equal(t, provider.ContentFiltered, apiErr.Kind, "status %d", status)
		assert.False(t, apiErr.Kind.Retryable())
	}
}

func TestClassifyStatusFallback(t *testing.T) {
	apiErr := Classify("openai", http.StatusServiceUnavailable, "brand_new_code", "something broke")
	assert.Equal(t, provider.ServiceError, apiErr.Kind)
	assert.Equal(t, "brand_new_code", apiErr.Code, "the native code survives for diagnostics")
}

func TestClassifyUnknownEverything(t *testing.T) {
	apiErr := Classify("openai", 418, "im_a_teapot", "short and stout")
	require.Equal(t, provider.ProviderError, apiErr.Kind)
	assert.Equal(t, "short and stout", apiErr.Message, "unmapped errors keep the raw message")
}

func TestClassifyCodeCaseInsensitive(t *testing.T) {
	apiErr := Classify("openai", http.StatusUnauthorized, "Invalid_API_Key", "")
	assert.Equal(t, provider.AccessDenied, apiErr.Kind)
}
