package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineyio/flowgate"
)

// Provider is a scriptable backend for testing.
type Provider struct {
	name        string
	configured  bool
	chunks      []string
	latency     time.Duration
	streamErr   error
	visionErr   error
	vision      flowgate.VisionResult
	noTerminal  bool
	afterDone   []flowgate.StreamEvent
	streamCalls atomic.Int64
	visionCalls atomic.Int64

	mu          sync.Mutex
	lastRequest flowgate.AnalysisRequest
}

var _ flowgate.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:       "Mock",
		configured: true,
		chunks:     []string{"Hello from mock provider"},
		vision: flowgate.VisionResult{
			AnalysisText: "mock vision analysis",
			Confidence:   flowgate.ConfidenceMedium,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithConfigured sets what IsConfigured reports.
func WithConfigured(ok bool) Option {
	return func(p *Provider) { p.configured = ok }
}

// WithChunks sets the delta texts streamed in order.
func WithChunks(chunks ...string) Option {
	return func(p *Provider) { p.chunks = chunks }
}

// WithLatency waits before each chunk.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithError fails the stream after all chunks have been sent.
func WithError(err error) Option {
	return func(p *Provider) { p.streamErr = err }
}

// WithVision sets the AnalyzeVision result.
func WithVision(res flowgate.VisionResult) Option {
	return func(p *Provider) { p.vision = res }
}

// WithVisionError makes AnalyzeVision fail.
func WithVisionError(err error) Option {
	return func(p *Provider) { p.visionErr = err }
}

// WithoutTerminal makes Stream return without emitting done, or without the
// error event when combined with WithError. Simulates a broken backend.
func WithoutTerminal() Option {
	return func(p *Provider) { p.noTerminal = true }
}

// WithEventsAfterDone emits extra events after done. Simulates a broken backend.
func WithEventsAfterDone(events ...flowgate.StreamEvent) Option {
	return func(p *Provider) { p.afterDone = events }
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) IsConfigured() bool { return p.configured }

func (p *Provider) FormatPrompt(text, visionAnalysis, system string) (flowgate.Prompt, error) {
	return flowgate.Prompt{
		System:   flowgate.SystemOrDefault(system),
		Messages: []flowgate.Message{{Role: "user", Content: flowgate.BuildUserPrompt(text, visionAnalysis)}},
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req flowgate.AnalysisRequest, sink flowgate.Sink) error {
	p.streamCalls.Add(1)
	p.mu.Lock()
	p.lastRequest = req
	p.mu.Unlock()

	for _, c := range p.chunks {
		if p.latency > 0 {
			select {
			case <-time.After(p.latency):
			case <-ctx.Done():
				if p.noTerminal {
					return context.Cause(ctx)
				}
				return flowgate.FailStream(ctx, sink, ctx.Err())
			}
		}
		if err := sink.Send(flowgate.ContentDelta(c)); err != nil {
			return err
		}
	}

	if p.streamErr != nil {
		if p.noTerminal {
			return p.streamErr
		}
		return flowgate.FailStream(ctx, sink, p.streamErr)
	}
	if p.noTerminal {
		return nil
	}
	if err := flowgate.FinishStream(sink); err != nil {
		return err
	}
	for _, e := range p.afterDone {
		_ = sink.Send(e)
	}
	return nil
}

func (p *Provider) AnalyzeVision(_ context.Context, req flowgate.VisionRequest) (flowgate.VisionResult, error) {
	p.visionCalls.Add(1)
	if err := flowgate.ValidateVisionRequest(req); err != nil {
		return flowgate.VisionResult{}, err
	}
	if p.visionErr != nil {
		return flowgate.VisionResult{}, p.visionErr
	}
	return p.vision, nil
}

// StreamCalls returns the number of Stream calls made.
func (p *Provider) StreamCalls() int64 { return p.streamCalls.Load() }

// VisionCalls returns the number of AnalyzeVision calls made.
func (p *Provider) VisionCalls() int64 { return p.visionCalls.Load() }

// LastRequest returns the request passed to the most recent Stream call.
func (p *Provider) LastRequest() flowgate.AnalysisRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRequest
}
