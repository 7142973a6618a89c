package gemini

import (
	"net/http"
	"strings"

	"github.com/casualjim/aviary/provider"
)

// Gemini error bodies carry a google.rpc status string alongside the HTTP
// code. The status string is the primary signal; message heuristics split
// the overloaded cases the API multiplexes onto a single status, and the
// HTTP code is the fallback when the body is empty or not JSON.
var statusTable = map[string]provider.ErrorKind{
	"INVALID_ARGUMENT":    provider.InvalidParameter,
	"FAILED_PRECONDITION": provider.AccessDenied,
	"UNAUTHENTICATED":     provider.AccessDenied,
	"PERMISSION_DENIED":   provider.AccessDenied,
	"NOT_FOUND":           provider.ModelNotFound,
	"RESOURCE_EXHAUSTED":  provider.RateLimited,
	"DEADLINE_EXCEEDED":   provider.Timeout,
	"INTERNAL":            provider.ServiceError,
	"UNAVAILABLE":         provider.ServiceError,
	"ABORTED":             provider.ProviderError,
}

var httpTable = map[int]provider.ErrorKind{
	http.StatusBadRequest:          provider.InvalidParameter,
	http.StatusUnauthorized:        provider.AccessDenied,
	http.StatusForbidden:           provider.AccessDenied,
	http.StatusNotFound:            provider.ModelNotFound,
	http.StatusTooManyRequests:     provider.RateLimited,
	http.StatusInternalServerError: provider.ServiceError,
	http.StatusServiceUnavailable:  provider.ServiceError,
	http.StatusGatewayTimeout:      provider.Timeout,
}

// blockedFinish holds the finish and block reasons that mean generation was
// cut off by a safety system rather than completed.
var blockedFinish = map[string]struct{}{
	"SAFETY":             {},
	"RECITATION":         {},
	"BLOCKLIST":          {},
	"PROHIBITED_CONTENT": {},
	"SPII":               {},
	"IMAGE_SAFETY":       {},
}

func isBlockedFinish(reason string) bool {
	_, ok := blockedFinish[reason]
	return ok
}

func classifyBlock(providerName, reason string) *provider.APIError {
	return provider.NewAPIError(provider.ContentFiltered, providerName, reason, http.StatusOK,
		"the request was declined because of the safety settings")
}

func classify(providerName string, status int, rpcStatus, message string) *provider.APIError {
	kind, ok := statusTable[rpcStatus]
	if !ok {
		if kind, ok = httpTable[status]; !ok {
			kind = provider.ProviderError
		}
	}

	lower := strings.ToLower(message)
	switch kind {
	case provider.RateLimited:
		// Quota errors share RESOURCE_EXHAUSTED with throttling. A message
		// naming the quota or billing plan means retrying cannot help.
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") ||
			strings.Contains(lower, "plan") {
			kind = provider.QuotaExhausted
		}
	case provider.InvalidParameter:
		// An unknown model name also surfaces as INVALID_ARGUMENT.
		if strings.Contains(lower, "model") && strings.Contains(lower, "not found") {
			kind = provider.ModelNotFound
		}
		if strings.Contains(lower, "api key not valid") {
			kind = provider.AccessDenied
		}
	}

	code := rpcStatus
	if code == "" {
		code = http.StatusText(status)
	}
	if message == "" {
		message = "the model backend reported an error"
	}
	return provider.NewAPIError(kind, providerName, code, status, userMessage(kind, message))
}

func userMessage(kind provider.ErrorKind, raw string) string {
	switch kind {
	case provider.Timeout:
		return "the model did not answer within the allotted time"
	case provider.RateLimited:
		return "too many requests, the model needs a moment to catch up"
	case provider.QuotaExhausted:
		return "the usage quota for this model has been spent"
	case provider.ContentFiltered:
		return "the request was declined because of the safety settings"
	case provider.ModelNotFound:
		return "the requested model does not exist or is not available"
	case provider.AccessDenied:
		return "the credentials were rejected by the model backend"
	case provider.ServiceError:
		return "the model backend is having trouble, try again shortly"
	default:
		return raw
	}
}
