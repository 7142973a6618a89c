package gemini

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

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Provider talks to Google's Gemini generateContent API over HTTP, using
// the SSE variant of streamGenerateContent for token delivery.
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

// New creates a Gemini client.
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

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int64    `json:"maxOutputTokens,omitempty"`
}

func (p *Provider) buildRequest(req provider.Request) *generateRequest {
	gr := &generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		gr.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		gr.GenerationConfig.Temperature = &temp
	}
	return gr
}

func (p *Provider) send(ctx context.Context, model, verb string, gr *generateRequest) (*http.Response, error) {
	body, err := json.Marshal(gr)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s", p.baseURL, model, verb, p.apiKey)
	if verb == "streamGenerateContent" {
		url += "&alt=sse"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return p.httpClient.Do(httpReq)
}

// Complete issues a single blocking call.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (provider.Result, error) {
	start := time.Now()

	httpResp, err := p.send(ctx, req.Model, "generateContent", p.buildRequest(req))
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

	if block := parsed.Get("promptFeedback.blockReason"); block.Exists() && block.String() != "" {
		classified := classifyBlock(p.name, block.String())
		return provider.Result{Duration: time.Since(start), Err: classified}, classified
	}
	if finish := parsed.Get("candidates.0.finishReason"); isBlockedFinish(finish.String()) {
		classified := classifyBlock(p.name, finish.String())
		return provider.Result{Duration: time.Since(start), Err: classified}, classified
	}

	var text strings.Builder
	for _, pt := range parsed.Get("candidates.0.content.parts").Array() {
		text.WriteString(pt.Get("text").String())
	}

	usage := provider.Usage{
		Input:  parsed.Get("usageMetadata.promptTokenCount").Int(),
		Output: parsed.Get("usageMetadata.candidatesTokenCount").Int(),
		Total:  parsed.Get("usageMetadata.totalTokenCount").Int(),
	}.Resolve()

	return provider.Result{
		Text:     text.String(),
		Usage:    usage,
		Duration: time.Since(start),
		Success:  true,
	}, nil
}

// Stream issues a streaming call. Gemini delivers SSE data lines each
// carrying a partial generateContent response; usage metadata repeats on
// every chunk with the running totals, so the last seen value wins.
func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	httpResp, err := p.send(ctx, req.Model, "streamGenerateContent", p.buildRequest(req))
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

		if errObj := payload.Get("error"); errObj.Exists() {
			streamErr = classify(p.name,
				int(errObj.Get("code").Int()),
				errObj.Get("status").String(),
				errObj.Get("message").String())
			break loop
		}

		if meta := payload.Get("usageMetadata"); meta.Exists() {
			usage = provider.Usage{
				Input:  meta.Get("promptTokenCount").Int(),
				Output: meta.Get("candidatesTokenCount").Int(),
				Total:  meta.Get("totalTokenCount").Int(),
			}
		}

		if finish := payload.Get("candidates.0.finishReason"); isBlockedFinish(finish.String()) {
			streamErr = classifyBlock(p.name, finish.String())
			break loop
		}

		text := payload.Get("candidates.0.content.parts.0.text").String()
		if text == "" {
			continue
		}

		tokenCount++
		events <- provider.Token{
			Provider:  p.name,
			Text:      text,
			Timestamp: strfmt.DateTime(time.Now()),
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
		parsed.Get("error.status").String(),
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
