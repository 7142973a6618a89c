package anthropic

import (
	"net/http"
	"strings"

	"github.com/casualjim/aviary/provider"
)

// Anthropic reports errors as {type, message} objects with a deliberately
// small type vocabulary, so classification works in three passes: the
// documented type table first, then message substrings for the cases the
// type does not distinguish (content filtering, credit exhaustion, unknown
// models all arrive as invalid_request_error or api_error), then the HTTP
// status fallback. The substring pass is the exception the engine otherwise
// avoids; it exists because these cases are not separable any other way.
type classification struct {
	kind    provider.ErrorKind
	message string
}

var typeTable = map[string]classification{
	"invalid_request_error": {provider.InvalidParameter, "the request is malformed"},
	"authentication_error":  {provider.AccessDenied, "authentication failed"},
	"permission_error":      {provider.AccessDenied, "the API key lacks permission for this resource"},
	"not_found_error":       {provider.ModelNotFound, "the requested resource does not exist"},
	"request_too_large":     {provider.InvalidParameter, "the request payload is too large"},
	"rate_limit_error":      {provider.RateLimited, "too many requests, slow down"},
	"api_error":             {provider.ServiceError, "the backend hit an internal error"},
	"overloaded_error":      {provider.ServiceError, "the backend is overloaded"},
	"timeout_error":         {provider.Timeout, "the backend timed out"},
	"billing_error":         {provider.QuotaExhausted, "billing prevents this request"},
}

// messageHints are checked before the type table so the coarse types do not
// swallow the cases that need a more specific kind.
var messageHints = []struct {
	needle string
	class  classification
}{
	{"credit balance is too low", classification{provider.QuotaExhausted, "the account credit balance is too low"}},
	{"exceeded your quota", classification{provider.QuotaExhausted, "the account has exhausted its quota"}},
	{"content filtering policy", classification{provider.ContentFiltered, "the response was withheld by the content filter"}},
	{"blocked by our content", classification{provider.ContentFiltered, "the request was blocked by the content policy"}},
	{"usage policy", classification{provider.ContentFiltered, "the request was rejected under the usage policy"}},
	{"intellectual property", classification{provider.ContentFiltered, "the request was rejected for possible IP infringement"}},
	{"prompt is too long", classification{provider.InvalidParameter, "the prompt exceeds the model's context window"}},
	{"model:", classification{provider.ModelNotFound, "the requested model does not exist or is not accessible"}},
	{"not_found_error: model", classification{provider.ModelNotFound, "the requested model does not exist or is not accessible"}},
}

var statusTable = map[int]classification{
	http.StatusBadRequest:            {provider.InvalidParameter, "the request is malformed"},
	http.StatusUnauthorized:          {provider.AccessDenied, "authentication failed"},
	http.StatusForbidden:             {provider.AccessDenied, "access to this resource is forbidden"},
	http.StatusNotFound:              {provider.ModelNotFound, "the requested model or endpoint does not exist"},
	http.StatusRequestEntityTooLarge: {provider.InvalidParameter, "the request payload is too large"},
	http.StatusTooManyRequests:       {provider.RateLimited, "too many requests, slow down"},
	http.StatusInternalServerError:   {provider.ServiceError, "the backend hit an internal error"},
	http.StatusBadGateway:            {provider.ServiceError, "the backend gateway failed"},
	http.StatusServiceUnavailable:    {provider.ServiceError, "the backend is temporarily unavailable"},
	http.StatusGatewayTimeout:        {provider.Timeout, "the backend gateway timed out"},
	529:                              {provider.ServiceError, "the backend is overloaded"},
}

func classify(providerName string, status int, errType, message string) *provider.APIError {
	lowered := strings.ToLower(message)
	for _, hint := range messageHints {
		if strings.Contains(lowered, hint.needle) {
			return provider.NewAPIError(hint.class.kind, providerName, errType, status, hint.class.message)
		}
	}

	if c, ok := typeTable[strings.ToLower(strings.TrimSpace(errType))]; ok {
		return provider.NewAPIError(c.kind, providerName, errType, status, c.message)
	}
	if c, ok := statusTable[status]; ok {
		return provider.NewAPIError(c.kind, providerName, errType, status, c.message)
	}

	msg := message
	if msg == "" {
		msg = "the provider reported an unrecognized error"
	}
	return provider.NewAPIError(provider.ProviderError, providerName, errType, status, msg)
}
