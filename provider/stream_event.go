package provider

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	tokenJSON    = []byte(`{"type":"token"}`)
	completeJSON = []byte(`{"type":"complete"}`)
	errorJSON    = []byte(`{"type":"error"}`)
)

// StreamEvent is the tagged union flowing over a streaming call. A stream
// consists of any number of Token events followed by exactly one terminal
// Complete or Error event. When several providers stream concurrently their
// events are interleaved; ordering across providers is completion order, not
// any provider's internal order.
type StreamEvent interface {
	streamEvent()
}

// Token carries one incremental text fragment from a provider.
type Token struct {
	Provider  string          `json:"provider"`
	Text      string          `json:"text"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Token) streamEvent() {}

// Complete is the terminal success event for one provider's stream.
type Complete struct {
	Provider   string          `json:"provider"`
	Duration   time.Duration   `json:"duration"`
	TokenCount int             `json:"token_count"`
	Usage      Usage           `json:"usage"`
	Timestamp  strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Complete) streamEvent() {}

// Error is the terminal failure event for one provider's stream.
type Error struct {
	Provider  string          `json:"provider"`
	Err       error           `json:"error"`
	Elapsed   time.Duration   `json:"elapsed"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Error) streamEvent() {}

func (e Error) Error() string {
	return fmt.Sprintf("provider: %s, elapsed: %s, error: %v", e.Provider, e.Elapsed, e.Err)
}

// Kind returns the taxonomy kind of the wrapped error.
func (e Error) Kind() ErrorKind {
	return KindOf(e.Err)
}

// MarshalJSON implements custom JSON marshaling for Token
func (t Token) MarshalJSON() ([]byte, error) {
	result := tokenJSON

	var err error
	result, err = sjson.SetBytes(result, "provider", t.Provider)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "text", t.Text)
	if err != nil {
		return nil, err
	}

	if !t.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", t.Timestamp.String())
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Token
func (t *Token) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "token" {
		return fmt.Errorf("missing or invalid type, expected 'token'")
	}

	prov := gjson.GetBytes(data, "provider")
	if !prov.Exists() {
		return fmt.Errorf("missing required field 'provider'")
	}
	t.Provider = prov.String()

	text := gjson.GetBytes(data, "text")
	if !text.Exists() {
		return fmt.Errorf("missing required field 'text'")
	}
	t.Text = text.String()

	if timestamp := gjson.GetBytes(data, "timestamp"); timestamp.Exists() {
		if err := t.Timestamp.UnmarshalText([]byte(timestamp.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling for Complete
func (c Complete) MarshalJSON() ([]byte, error) {
	result := completeJSON

	var err error
	result, err = sjson.SetBytes(result, "provider", c.Provider)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "duration", int64(c.Duration))
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "token_count", c.TokenCount)
	if err != nil {
		return nil, err
	}

	usageBytes, err := json.Marshal(c.Usage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal usage: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "usage", usageBytes)
	if err != nil {
		return nil, err
	}

	if !c.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", c.Timestamp.String())
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Complete
func (c *Complete) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "complete" {
		return fmt.Errorf("missing or invalid type, expected 'complete'")
	}

	prov := gjson.GetBytes(data, "provider")
	if !prov.Exists() {
		return fmt.Errorf("missing required field 'provider'")
	}
	c.Provider = prov.String()

	if duration := gjson.GetBytes(data, "duration"); duration.Exists() {
		c.Duration = time.Duration(duration.Int())
	}

	if count := gjson.GetBytes(data, "token_count"); count.Exists() {
		c.TokenCount = int(count.Int())
	}

	usage := gjson.GetBytes(data, "usage")
	if !usage.Exists() {
		return fmt.Errorf("missing required field 'usage'")
	}
	if err := json.Unmarshal([]byte(usage.Raw), &c.Usage); err != nil {
		return fmt.Errorf("invalid usage: %w", err)
	}

	if timestamp := gjson.GetBytes(data, "timestamp"); timestamp.Exists() {
		if err := c.Timestamp.UnmarshalText([]byte(timestamp.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling for Error
func (e Error) MarshalJSON() ([]byte, error) {
	result := errorJSON

	var err error
	result, err = sjson.SetBytes(result, "provider", e.Provider)
	if err != nil {
		return nil, err
	}

	if e.Err != nil {
		result, err = sjson.SetBytes(result, "error", e.Err.Error())
		if err != nil {
			return nil, err
		}
		result, err = sjson.SetBytes(result, "kind", KindOf(e.Err).String())
		if err != nil {
			return nil, err
		}
	}

	result, err = sjson.SetBytes(result, "elapsed", int64(e.Elapsed))
	if err != nil {
		return nil, err
	}

	if !e.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", e.Timestamp.String())
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Error
func (e *Error) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "error" {
		return fmt.Errorf("missing or invalid type, expected 'error'")
	}

	prov := gjson.GetBytes(data, "provider")
	if !prov.Exists() {
		return fmt.Errorf("missing required field 'provider'")
	}
	e.Provider = prov.String()

	errMsg := gjson.GetBytes(data, "error")
	if !errMsg.Exists() {
		return fmt.Errorf("missing required field 'error'")
	}
	e.Err = fmt.Errorf("%s", errMsg.String())

	if elapsed := gjson.GetBytes(data, "elapsed"); elapsed.Exists() {
		e.Elapsed = time.Duration(elapsed.Int())
	}

	if timestamp := gjson.GetBytes(data, "timestamp"); timestamp.Exists() {
		if err := e.Timestamp.UnmarshalText([]byte(timestamp.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	return nil
}
