package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/casualjim/aviary/provider"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Provider talks to Anthropic's messages API directly over HTTP, including
// its SSE stream format.
type Provider struct {
	name       string
	platform   string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = baseURL }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

// New creates an Anthropic client.
func New(name, platform, apiKey string, options ...Option) *Provider {
	p := &Provider{
		name:       name,
		platform:   platform,
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Platform() string {
	return p.platform
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int64     `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *Provider) buildRequest(req provider.Request, stream bool) *messagesRequest {
	mr := &messagesRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
		Stream:    stream,
	}
	if mr.MaxTokens == 0 {
		mr.MaxTokens = defaultMaxTokens
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		mr.Temperature = &temp
	}
	return mr
}

func (p *Provider) send(ctx context.Context, mr *messagesRequest) (*http.Response, error) {
	body, err := json.Marshal(mr)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	return p.httpClient.Do(httpReq)
}

// Complete issues a single blocking call.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (provider.Result, error) {
	start := time.Now()

	httpResp, err := p.send(ctx, p.buildRequest(req, false))
	if err != nil {
		classified := p.classifyTransport(ctx, err)
		return provider.Result{Duration: time.Since(start), Err: classified}, classified
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		classified := p.classifyTransport(ctx, err)
		return provider.Result{Duration: time.Since(start), Err: classified}, classified
	}

	if httpResp.StatusCode != http.StatusOK {
		classified := p.classifyBody(httpResp.StatusCode, respBody)
		return provider.Result{Duration: time.Since(start), Err: classified}, classified
	}

	parsed := gjson.ParseBytes(respBody)
	var text strings.Builder
	for _, block := range parsed.Get("content").Array() {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
	}

	usage := provider.Usage{
		Input:  parsed.Get("usage.input_tokens").Int(),
		Output: parsed.Get("usage.output_tokens").Int(),
	}.Resolve()

	return provider.Result{
		Text:     text.String(),
		Usage:    usage,
		Duration: time.Since(start),
		Success:  true,
	}, nil
}

// Stream issues a streaming call and translates Anthropic's SSE events into
// the engine's tagged event union.
func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	httpResp, err := p.send(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, p.classifyTransport(ctx, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer func() { _ = httpResp.Body.Close() }()
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, p.classifyBody(httpResp.StatusCode, respBody)
	}

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		defer func() { _ = httpResp.Body.Close() }()
		p.runStream(ctx, httpResp.Body, events)
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, body io.Reader, events chan<- provider.StreamEvent) {
	start := time.Now()
	reader := bufio.NewReader(body)

	var (
		usage      provider.Usage
		tokenCount int
		streamErr  error
	)

loop:
	for {
		if err := ctx.Err(); err != nil {
			streamErr = p.classifyTransport(ctx, err)
			break
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = p.classifyTransport(ctx, err)
			}
			break
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := gjson.Parse(strings.TrimSpace(strings.TrimPrefix(line, "data:")))

		switch payload.Get("type").String() {
		case "message_start":
			usage.Input = payload.Get("message.usage.input_tokens").Int()
		case "content_block_delta":
			if payload.Get("delta.type").String() != "text_delta" {
				continue
			}
			tokenCount++
			events <- provider.Token{
				Provider:  p.name,
				Text:      payload.Get("delta.text").String(),
				Timestamp: strfmt.DateTime(time.Now()),
			}
		case "message_delta":
			// Trailing usage arrives here, before message_stop.
			if out := payload.Get("usage.output_tokens"); out.Exists() {
				usage.Output = out.Int()
			}
		case "message_stop":
			break loop
		case "error":
			streamErr = classify(p.name,
				int(payload.Get("error.status").Int()),
				payload.Get("error.type").String(),
				payload.Get("error.message").String())
			break loop
		}
	}

	if streamErr != nil {
		events <- provider.Error{
			Provider:  p.name,
			Err:       streamErr,
			Elapsed:   time.Since(start),
			Timestamp: strfmt.DateTime(time.Now()),
		}
		return
	}

	// Reached on message_stop or on a truncated stream; either way the
	// usage gathered so far goes out with the completion.
	events <- provider.Complete{
		Provider:   p.name,
		Duration:   time.Since(start),
		TokenCount: tokenCount,
		Usage:      usage.Resolve(),
		Timestamp:  strfmt.DateTime(time.Now()),
	}
}

func (p *Provider) classifyBody(status int, body []byte) *provider.APIError {
	parsed := gjson.ParseBytes(body)
	return classify(p.name, status,
		parsed.Get("error.type").String(),
		parsed.Get("error.message").String())
}

func (p *Provider) classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return provider.NewAPIError(provider.Timeout, p.name, "timeout", 0,
			"the model did not answer within the allotted time").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return provider.NewAPIError(provider.ProviderError, p.name, "transport_error", 0, err.Error()).WithCause(err)
}
