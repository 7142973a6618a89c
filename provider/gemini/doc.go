// Package gemini implements the provider contract for Google's Gemini
// generateContent API. Responses are navigated with gjson rather than typed
// structs because Google's error and safety signals move around between
// fields (rpc status strings, block reasons, finish reasons) and the
// classification in errors.go wants to look at all of them.
package gemini
