package openai

import (
	"net/http"
	"strings"

	"github.com/casualjim/aviary/provider"
)

// The OpenAI family reports errors as {code, type, message} objects. The
// tables below map documented codes onto the shared taxonomy. Precedence:
// content-safety codes always win, then exact code matches, then the HTTP
// status fallback; anything unmapped becomes ProviderError carrying the raw
// code for observability. DeepSeek and Qwen/DashScope expose the same wire
// format and mostly the same vocabulary, so their documented codes live in
// the same tables.
type classification struct {
	kind    provider.ErrorKind
	message string
}

// contentSafetyCodes map to ContentFiltered regardless of the HTTP status
// the backend happened to choose. IP-infringement rejections belong here
// too.
var contentSafetyCodes = map[string]classification{
	"content_policy_violation": {provider.ContentFiltered, "the request was rejected by the content policy"},
	"content_filter":           {provider.ContentFiltered, "the response was withheld by the content filter"},
	"moderation_blocked":       {provider.ContentFiltered, "the request was blocked by moderation"},
	"data_inspection_failed":   {provider.ContentFiltered, "the request did not pass content inspection"},
	"ip_infringement":          {provider.ContentFiltered, "the request was rejected for possible IP infringement"},
	"unsafe_content":           {provider.ContentFiltered, "the request was flagged as unsafe"},
}

// codeTable maps documented error codes to kinds. Specific codes beat the
// status fallback below.
var codeTable = map[string]classification{
	// authentication / authorization
	"invalid_api_key":         {provider.AccessDenied, "the API key is invalid"},
	"invalid_authentication":  {provider.AccessDenied, "authentication failed"},
	"mismatched_organization": {provider.AccessDenied, "the API key does not belong to this organization"},
	"organization_restricted": {provider.AccessDenied, "the organization has been restricted"},
	"permission_denied":       {provider.AccessDenied, "the API key lacks permission for this resource"},
	"account_deactivated":     {provider.AccessDenied, "the account has been deactivated"},
	"unauthorized_request":    {provider.AccessDenied, "the request is not authorized"},

	// quota / billing
	"insufficient_quota":         {provider.QuotaExhausted, "the account has exhausted its quota"},
	"insufficient_user_quota":    {provider.QuotaExhausted, "the user quota has been exhausted"},
	"billing_hard_limit_reached": {provider.QuotaExhausted, "the billing hard limit has been reached"},
	"billing_not_active":         {provider.QuotaExhausted, "billing is not active on this account"},
	"quota_exceeded":             {provider.QuotaExhausted, "the quota has been exceeded"},
	"arrearage":                  {provider.QuotaExhausted, "the account balance is insufficient"},

	// throttling
	"rate_limit_exceeded":          {provider.RateLimited, "too many requests, slow down"},
	"requests_per_minute_exceeded": {provider.RateLimited, "the request-per-minute budget is exhausted"},
	"tokens_per_minute_exceeded":   {provider.RateLimited, "the token-per-minute budget is exhausted"},
	"throttling":                   {provider.RateLimited, "the platform is throttling requests"},
	"slow_down":                    {provider.RateLimited, "the platform asked to slow down"},

	// model resolution
	"model_not_found":      {provider.ModelNotFound, "the requested model does not exist or is not accessible"},
	"model_not_open":       {provider.ModelNotFound, "the requested model is not open for access"},
	"model_unavailable":    {provider.ModelNotFound, "the requested model is currently unavailable"},
	"deployment_not_found": {provider.ModelNotFound, "the requested deployment does not exist"},

	// request validation
	"invalid_request_error":      {provider.InvalidParameter, "the request is malformed"},
	"invalid_parameter":          {provider.InvalidParameter, "a request parameter is invalid"},
	"invalid_parameter_error":    {provider.InvalidParameter, "a request parameter is invalid"},
	"context_length_exceeded":    {provider.InvalidParameter, "the prompt exceeds the model's context window"},
	"max_tokens_exceeded":        {provider.InvalidParameter, "max_tokens exceeds the model limit"},
	"string_above_max_length":    {provider.InvalidParameter, "an input string exceeds its maximum length"},
	"integer_above_max_value":    {provider.InvalidParameter, "an integer parameter exceeds its maximum"},
	"integer_below_min_value":    {provider.InvalidParameter, "an integer parameter is below its minimum"},
	"invalid_type":               {provider.InvalidParameter, "a parameter has the wrong type"},
	"missing_required_parameter": {provider.InvalidParameter, "a required parameter is missing"},
	"unsupported_country_region": {provider.AccessDenied, "the service is not available in this region"},
	"unsupported_parameter":      {provider.InvalidParameter, "a parameter is not supported by this model"},
	"unknown_parameter":          {provider.InvalidParameter, "an unknown parameter was supplied"},

	// backend health
	"server_error":        {provider.ServiceError, "the backend hit an internal error"},
	"internal_error":      {provider.ServiceError, "the backend hit an internal error"},
	"engine_overloaded":   {provider.ServiceError, "the backend is overloaded"},
	"service_unavailable": {provider.ServiceError, "the backend is temporarily unavailable"},
	"system_error":        {provider.ServiceError, "the backend reported a system error"},
	"timeout":             {provider.Timeout, "the backend timed out"},
	"request_timeout":     {provider.Timeout, "the request timed out on the backend"},
	"response_timeout":    {provider.Timeout, "the backend took too long to respond"},
}

// statusTable is the generic HTTP fallback when the code is unknown.
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
}

// Classify maps an OpenAI-family error onto the shared taxonomy. The
// returned error always carries the native code and HTTP status for
// diagnostics.
func Classify(providerName string, status int, code, message string) *provider.APIError {
	normalized := strings.ToLower(strings.TrimSpace(code))

	if c, ok := contentSafetyCodes[normalized]; ok {
		return provider.NewAPIError(c.kind, providerName, code, status, c.message)
	}
	if c, ok := codeTable[normalized]; ok {
		return provider.NewAPIError(c.kind, providerName, code, status, c.message)
	}
	if c, ok := statusTable[status]; ok {
		return provider.NewAPIError(c.kind, providerName, code, status, c.message)
	}

	msg := message
	if msg == "" {
		msg = "the provider reported an unrecognized error"
	}
	return provider.NewAPIError(provider.ProviderError, providerName, code, status, msg)
}
