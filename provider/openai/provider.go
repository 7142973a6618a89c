package openai

import (
	"context"
	"errors"
	"time"

	"github.com/casualjim/aviary/provider"
	"github.com/go-openapi/strfmt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Provider talks to OpenAI's chat completions API through the official SDK.
// It also serves OpenAI-compatible backends (DeepSeek, Qwen/DashScope) when
// constructed with a different base URL; those backends share this family's
// error vocabulary.
type Provider struct {
	name     string
	platform string
	client   *openai.Client
}

// New creates a client for one OpenAI-compatible backend. The name is the
// logical provider name surfaced on events and errors; the platform is the
// billing boundary admission control applies to.
func New(name, platform string, options ...option.RequestOption) *Provider {
	client := openai.NewClient(options...)
	return &Provider{
		name:     name,
		platform: platform,
		client:   client,
	}
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Platform() string {
	return p.platform
}

func (p *Provider) buildRequest(req provider.Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages: openai.F(messages),
		Model:    openai.F(req.Model),
		N:        openai.Int(1),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	return params
}

// Complete issues a single blocking call. Reasoning backends reject
// streaming-only thinking output on unary calls, so it is switched off
// explicitly here.
func (p *Provider) Complete(ctx context.Context, req provider.Request) (provider.Result, error) {
	start := time.Now()

	chat, err := p.client.Chat.Completions.New(ctx, p.buildRequest(req),
		option.WithJSONSet("enable_thinking", false))
	if err != nil {
		classified := p.classifyTransport(ctx, err)
		return provider.Result{Duration: time.Since(start), Err: classified}, classified
	}

	var text string
	if len(chat.Choices) > 0 {
		text = chat.Choices[0].Message.Content
	}

	usage := provider.Usage{
		Input:  chat.Usage.PromptTokens,
		Output: chat.Usage.CompletionTokens,
		Total:  chat.Usage.TotalTokens,
	}.Resolve()

	return provider.Result{
		Text:     text,
		Usage:    usage,
		Duration: time.Since(start),
		Success:  true,
	}, nil
}

// Stream issues a streaming call. Token events carry content deltas; the
// terminal Complete event carries the usage reported on the final chunk.
func (p *Provider) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	params := p.buildRequest(req)
	params.StreamOptions = openai.F(openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	})

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		p.runStream(ctx, params, events)
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, params openai.ChatCompletionNewParams, events chan<- provider.StreamEvent) {
	start := time.Now()

	strm := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = strm.Close() }()

	if strm.Err() != nil {
		events <- provider.Error{
			Provider:  p.name,
			Err:       p.classifyTransport(ctx, strm.Err()),
			Elapsed:   time.Since(start),
			Timestamp: strfmt.DateTime(time.Now()),
		}
		return
	}

	var (
		acc        openai.ChatCompletionAccumulator
		tokenCount int
	)

	for strm.Next() {
		if err := ctx.Err(); err != nil {
			events <- provider.Error{
				Provider:  p.name,
				Err:       p.classifyTransport(ctx, err),
				Elapsed:   time.Since(start),
				Timestamp: strfmt.DateTime(time.Now()),
			}
			return
		}

		chunk := strm.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		tokenCount++
		events <- provider.Token{
			Provider:  p.name,
			Text:      delta,
			Timestamp: strfmt.DateTime(time.Now()),
		}
	}

	// Even on early termination the accumulator keeps whatever trailing
	// usage the backend managed to deliver, so it is surfaced either way.
	usage := provider.Usage{
		Input:  acc.ChatCompletion.Usage.PromptTokens,
		Output: acc.ChatCompletion.Usage.CompletionTokens,
		Total:  acc.ChatCompletion.Usage.TotalTokens,
	}.Resolve()

	if err := strm.Err(); err != nil {
		events <- provider.Error{
			Provider:  p.name,
			Err:       p.classifyTransport(ctx, err),
			Elapsed:   time.Since(start),
			Timestamp: strfmt.DateTime(time.Now()),
		}
		return
	}

	events <- provider.Complete{
		Provider:   p.name,
		Duration:   time.Since(start),
		TokenCount: tokenCount,
		Usage:      usage,
		Timestamp:  strfmt.DateTime(time.Now()),
	}
}

// classifyTransport maps SDK and context errors onto the shared taxonomy.
func (p *Provider) classifyTransport(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return Classify(p.name, apiErr.StatusCode, apiErr.Code, apiErr.Message).WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return provider.NewAPIError(provider.Timeout, p.name, "timeout", 0,
			"the model did not answer within the allotted time").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return provider.NewAPIError(provider.ProviderError, p.name, "transport_error", 0, err.Error()).WithCause(err)
}
