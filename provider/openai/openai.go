package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ineyio/flowgate"
	"github.com/ineyio/flowgate/internal/sse"
)

const (
	// ID is the registry identifier of this backend.
	ID = "openai"
	// DisplayName is reported by Name when the config carries none.
	DisplayName = "OpenAI GPT"

	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o"

	// FallbackVisionModel is used for vision when the configured model
	// cannot read images.
	FallbackVisionModel = "gpt-4o"

	temperature     = 0.1
	maxTokens       = 16000
	visionMaxTokens = 4096
	maxErrorBody    = 1 << 20
)

var visionModels = map[string]bool{
	"gpt-4o":                 true,
	"gpt-4o-mini":            true,
	"gpt-4o-2024-05-13":      true,
	"gpt-4o-2024-08-06":      true,
	"gpt-4o-2024-11-20":      true,
	"chatgpt-4o-latest":      true,
	"gpt-4-turbo":            true,
	"gpt-4-turbo-2024-04-09": true,
	"gpt-4-vision-preview":   true,
	"gpt-4.1":                true,
	"gpt-4.1-mini":           true,
	"gpt-4.1-nano":           true,
}

// Provider is an OpenAI-compatible chat completions adapter.
// Works with OpenAI and any endpoint speaking the same wire format.
type Provider struct {
	flowgate.Base
	baseURL    string
	httpClient *http.Client
}

var _ flowgate.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// New creates a provider over the resolved configuration.
func New(cfg flowgate.ProviderConfig, opts ...Option) *Provider {
	if cfg.ProviderName == "" {
		cfg.ProviderName = DisplayName
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		Base:       flowgate.Base{Backend: ID, Config: cfg},
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// VisionModel returns the configured model when it accepts images, and
// FallbackVisionModel otherwise.
func (p *Provider) VisionModel() string {
	if visionModels[p.Config.Model] {
		return p.Config.Model
	}
	return FallbackVisionModel
}

// apiRequest is the OpenAI chat completion request format.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
	Stream      bool         `json:"stream,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// FormatPrompt returns the two-message exchange: persona as a system
// message, instructions plus article as the user message.
func (p *Provider) FormatPrompt(text, visionAnalysis, system string) (flowgate.Prompt, error) {
	return flowgate.Prompt{
		Messages: []flowgate.Message{
			{Role: "system", Content: flowgate.SystemOrDefault(system)},
			{Role: "user", Content: flowgate.BuildUserPrompt(text, visionAnalysis)},
		},
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req flowgate.AnalysisRequest, sink flowgate.Sink) error {
	prompt, err := p.FormatPrompt(req.Text, req.VisionAnalysis, req.System)
	if err != nil {
		return flowgate.FailStream(ctx, sink, err)
	}

	msgs := make([]apiMessage, len(prompt.Messages))
	for i, m := range prompt.Messages {
		msgs[i] = apiMessage{Role: m.Role, Content: m.Content}
	}

	httpResp, err := p.doRequest(ctx, apiRequest{
		Model:       p.Config.Model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	})
	if err != nil {
		return flowgate.FailStream(ctx, sink, &flowgate.ProviderError{Provider: ID, Op: "stream", Err: err})
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp, "stream"); err != nil {
		return flowgate.FailStream(ctx, sink, err)
	}

	events := sse.NewReader(httpResp.Body)
	for {
		ev, err := events.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return flowgate.FailStream(ctx, sink, &flowgate.ProviderError{Provider: ID, Op: "stream", Err: err})
		}

		data := strings.TrimSpace(ev.Data)
		if data == flowgate.DoneSentinel {
			break
		}
		if !gjson.Valid(data) {
			continue // skip malformed chunks
		}
		if msg := gjson.Get(data, "error.message"); msg.Exists() {
			return flowgate.FailStream(ctx, sink, &flowgate.ProviderError{
				Provider: ID,
				Op:       "stream",
				Err:      errors.New(msg.String()),
			})
		}

		choice := gjson.Get(data, "choices.0")
		if content := choice.Get("delta.content"); content.Exists() && content.String() != "" {
			if err := sink.Send(flowgate.ContentDelta(content.String())); err != nil {
				return err
			}
		}
		if choice.Get("finish_reason").String() != "" {
			break
		}
	}

	if ctx.Err() != nil {
		return flowgate.FailStream(ctx, sink, ctx.Err())
	}
	return flowgate.FinishStream(sink)
}

// AnalyzeVision sends the instructions and every image as inline data URIs
// to a vision-capable model.
func (p *Provider) AnalyzeVision(ctx context.Context, req flowgate.VisionRequest) (flowgate.VisionResult, error) {
	if err := flowgate.ValidateVisionRequest(req); err != nil {
		return flowgate.VisionResult{}, err
	}

	parts := make([]contentPart, 0, len(req.Images)+1)
	parts = append(parts, contentPart{Type: "text", Text: flowgate.VisionInstructions(req)})
	for _, img := range req.Images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img.DataURI()}})
	}

	httpResp, err := p.doRequest(ctx, apiRequest{
		Model:       p.VisionModel(),
		Messages:    []apiMessage{{Role: "user", Content: parts}},
		Temperature: temperature,
		MaxTokens:   visionMaxTokens,
	})
	if err != nil {
		return flowgate.VisionResult{}, &flowgate.ProviderError{Provider: ID, Op: "vision", Err: err}
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp, "vision"); err != nil {
		return flowgate.VisionResult{}, err
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return flowgate.VisionResult{}, &flowgate.ProviderError{Provider: ID, Op: "vision", Err: err}
	}
	if !gjson.ValidBytes(raw) {
		return flowgate.VisionResult{}, &flowgate.ProviderError{Provider: ID, Op: "vision", Err: errors.New("malformed response body")}
	}

	resp := gjson.ParseBytes(raw)
	content := resp.Get("choices.0.message.content")
	if !content.Exists() {
		return flowgate.VisionResult{}, &flowgate.ProviderError{Provider: ID, Op: "vision", Err: errors.New("empty choices in response")}
	}

	result := flowgate.VisionResult{
		AnalysisText: content.String(),
		Confidence:   flowgate.ConfidenceHigh,
	}
	if usage := resp.Get("usage"); usage.Exists() {
		total := usage.Get("total_tokens").Int()
		if total == 0 {
			total = usage.Get("prompt_tokens").Int() + usage.Get("completion_tokens").Int()
		}
		result.TokensUsed = flowgate.Int64Ptr(total)
	}
	return result, nil
}

func (p *Provider) doRequest(ctx context.Context, body apiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.Config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.Config.APIKey)
	}

	return p.httpClient.Do(httpReq)
}

func mapHTTPError(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	return &flowgate.ProviderError{
		Provider:   ID,
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       msg,
		Err:        errors.New(http.StatusText(resp.StatusCode)),
	}
}
