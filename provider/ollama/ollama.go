package ollama

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
	"github.com/ineyio/flowgate/internal/ndjson"
)

const (
	// ID is the registry identifier of this backend.
	ID = "ollama"
	// DisplayName is reported by Name when the config carries none.
	DisplayName = "Ollama (Local)"

	temperature  = 0.1
	numPredict   = 16000
	readBuffer   = 32 << 10
	maxErrorBody = 1 << 20
)

// VisionPlaceholder is returned by AnalyzeVision in place of real image
// understanding.
const VisionPlaceholder = "Image analysis is not available with the local model backend. " +
	"The attack flow will be extracted from the article text only."

// Provider is the Ollama /api/generate adapter.
type Provider struct {
	flowgate.Base
	baseURL    string
	httpClient *http.Client
	maxFrame   int
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

// WithMaxFrame bounds how many bytes of an unterminated line are buffered
// before they are given up on.
func WithMaxFrame(n int) Option {
	return func(p *Provider) { p.maxFrame = n }
}

// New creates a provider over the resolved configuration. Unlike the hosted
// backends, an empty BaseURL is kept empty so IsConfigured can report it.
func New(cfg flowgate.ProviderConfig, opts ...Option) *Provider {
	if cfg.ProviderName == "" {
		cfg.ProviderName = DisplayName
	}
	p := &Provider{
		Base:       flowgate.Base{Backend: ID, Config: cfg},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsConfigured requires an endpoint and at least one model. No API key is needed.
func (p *Provider) IsConfigured() bool {
	return p.Config.BaseURL != "" && (p.Config.Model != "" || p.Config.VisionModel != "")
}

// TextModel returns the model used for extraction, preferring the text model.
func (p *Provider) TextModel() string {
	if p.Config.Model != "" {
		return p.Config.Model
	}
	return p.Config.VisionModel
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

func (p *Provider) FormatPrompt(text, visionAnalysis, system string) (flowgate.Prompt, error) {
	return flowgate.Prompt{
		System: flowgate.SystemOrDefault(system),
		Messages: []flowgate.Message{
			{Role: "user", Content: flowgate.BuildUserPrompt(text, visionAnalysis)},
		},
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req flowgate.AnalysisRequest, sink flowgate.Sink) error {
	if !p.IsConfigured() {
		return flowgate.FailStream(ctx, sink, fmt.Errorf("%w: %s needs a base URL and a model", flowgate.ErrUnconfigured, ID))
	}

	prompt, err := p.FormatPrompt(req.Text, req.VisionAnalysis, req.System)
	if err != nil {
		return flowgate.FailStream(ctx, sink, err)
	}

	httpResp, err := p.doRequest(ctx, generateRequest{
		Model:  p.TextModel(),
		Prompt: prompt.UserText(),
		System: prompt.System,
		Stream: true,
		Options: generateOptions{
			Temperature: temperature,
			NumPredict:  numPredict,
		},
	})
	if err != nil {
		return flowgate.FailStream(ctx, sink, &flowgate.ProviderError{Provider: ID, Op: "stream", Err: err})
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return flowgate.FailStream(ctx, sink, err)
	}

	framer := ndjson.NewFramer(p.maxFrame)
	buf := make([]byte, readBuffer)
	for {
		n, readErr := httpResp.Body.Read(buf)
		if n > 0 {
			done, err := p.relayFrames(ctx, framer.Push(buf[:n]), sink)
			if err != nil || done {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return flowgate.FailStream(ctx, sink, &flowgate.ProviderError{Provider: ID, Op: "stream", Err: readErr})
		}
	}

	// Whatever never reassembled into an object is forwarded rather than lost.
	if done, err := p.relayFrames(ctx, framer.Flush(), sink); err != nil || done {
		return err
	}
	return flowgate.FinishStream(sink)
}

// relayFrames translates frames into canonical events. It reports done once
// the terminal event has been sent.
func (p *Provider) relayFrames(ctx context.Context, frames []ndjson.Frame, sink flowgate.Sink) (bool, error) {
	for _, f := range frames {
		if !f.Valid {
			if err := sink.Send(flowgate.ContentDelta(string(f.Data))); err != nil {
				return false, err
			}
			continue
		}

		obj := gjson.ParseBytes(f.Data)
		if !obj.IsObject() {
			if err := sink.Send(flowgate.ContentDelta(string(f.Data))); err != nil {
				return false, err
			}
			continue
		}
		if msg := obj.Get("error"); msg.Exists() {
			err := &flowgate.ProviderError{Provider: ID, Op: "stream", Err: errors.New(msg.String())}
			return true, flowgate.FailStream(ctx, sink, err)
		}
		if text := obj.Get("response"); text.Exists() && text.String() != "" {
			if err := sink.Send(flowgate.ContentDelta(text.String())); err != nil {
				return false, err
			}
		}
		if obj.Get("done").Bool() {
			return true, flowgate.FinishStream(sink)
		}
	}
	return false, nil
}

// AnalyzeVision validates the request and returns a fixed low-confidence
// placeholder. No request is sent.
func (p *Provider) AnalyzeVision(_ context.Context, req flowgate.VisionRequest) (flowgate.VisionResult, error) {
	if err := flowgate.ValidateVisionRequest(req); err != nil {
		return flowgate.VisionResult{}, err
	}
	return flowgate.VisionResult{
		AnalysisText: VisionPlaceholder,
		Confidence:   flowgate.ConfidenceLow,
	}, nil
}

func (p *Provider) doRequest(ctx context.Context, body generateRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return p.httpClient.Do(httpReq)
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := gjson.GetBytes(body, "error").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	return &flowgate.ProviderError{
		Provider:   ID,
		Op:         "stream",
		StatusCode: resp.StatusCode,
		Body:       msg,
		Err:        errors.New(http.StatusText(resp.StatusCode)),
	}
}
