package anthropic

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
	ID = "anthropic"
	// DisplayName is reported by Name when the config carries none.
	DisplayName = "Anthropic Claude"

	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-sonnet-4-20250514"

	apiVersion      = "2023-06-01"
	temperature     = 0.1
	maxTokens       = 16000
	visionMaxTokens = 4096
	maxErrorBody    = 1 << 20
)

// Provider is the Anthropic Messages API adapter.
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

// Messages API types.
type messagesRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	Stream      bool         `json:"stream,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentBlock
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// FormatPrompt places the persona in the top-level system field and the
// taxonomy instructions plus article in a single user turn.
func (p *Provider) FormatPrompt(text, visionAnalysis, system string) (flowgate.Prompt, error) {
	return flowgate.Prompt{
		System: flowgate.SystemOrDefault(system),
		Messages: []flowgate.Message{
			{Role: "user", Content: flowgate.BuildUserPrompt(text, visionAnalysis)},
		},
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req flowgate.AnalysisRequest, sink flowgate.Sink) error {
	prompt, err := p.FormatPrompt(req.Text, req.VisionAnalysis, req.System)
	if err != nil {
		return flowgate.FailStream(ctx, sink, err)
	}

	body := messagesRequest{
		Model:       p.Config.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      prompt.System,
		Messages:    []apiMessage{{Role: "user", Content: prompt.UserText()}},
		Stream:      true,
	}

	httpResp, err := p.doRequest(ctx, body)
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

		kind := ev.Name
		if kind == "" {
			kind = gjson.Get(ev.Data, "type").String()
		}

		switch kind {
		case "content_block_delta":
			text := gjson.Get(ev.Data, "delta.text")
			if !text.Exists() {
				continue // input_json_delta and friends
			}
			if err := sink.Send(flowgate.ContentDelta(text.String())); err != nil {
				return err
			}
		case "message_stop":
			return flowgate.FinishStream(sink)
		case "error":
			msg := gjson.Get(ev.Data, "error.message").String()
			if msg == "" {
				msg = ev.Data
			}
			return flowgate.FailStream(ctx, sink, &flowgate.ProviderError{
				Provider: ID,
				Op:       "stream",
				Err:      errors.New(msg),
			})
		}
	}

	if ctx.Err() != nil {
		return flowgate.FailStream(ctx, sink, ctx.Err())
	}
	return flowgate.FinishStream(sink)
}

// AnalyzeVision sends the instructions followed by every image in one
// non-streamed request.
func (p *Provider) AnalyzeVision(ctx context.Context, req flowgate.VisionRequest) (flowgate.VisionResult, error) {
	if err := flowgate.ValidateVisionRequest(req); err != nil {
		return flowgate.VisionResult{}, err
	}

	blocks := make([]contentBlock, 0, len(req.Images)+1)
	blocks = append(blocks, contentBlock{Type: "text", Text: flowgate.VisionInstructions(req)})
	for _, img := range req.Images {
		blocks = append(blocks, contentBlock{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: img.MediaType,
				Data:      img.Base64Data,
			},
		})
	}

	body := messagesRequest{
		Model:       p.Config.Model,
		MaxTokens:   visionMaxTokens,
		Temperature: temperature,
		Messages:    []apiMessage{{Role: "user", Content: blocks}},
	}

	httpResp, err := p.doRequest(ctx, body)
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
	var text strings.Builder
	resp.Get("content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
		return true
	})

	result := flowgate.VisionResult{
		AnalysisText: text.String(),
		Confidence:   flowgate.ConfidenceHigh,
	}
	if usage := resp.Get("usage"); usage.Exists() {
		result.TokensUsed = flowgate.Int64Ptr(usage.Get("input_tokens").Int() + usage.Get("output_tokens").Int())
	}
	return result, nil
}

func (p *Provider) doRequest(ctx context.Context, body messagesRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.Config.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	return p.httpClient.Do(httpReq)
}

// mapHTTPError reads the whole error body so the surfaced error carries the
// backend's own explanation.
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
