// Package gateway relays one provider stream per caller, enforcing the
// canonical event contract, and exposes it over HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ineyio/flowgate"
	"github.com/ineyio/flowgate/meter"
	"github.com/ineyio/flowgate/registry"
)

// Progress stages emitted around the vision phase.
const (
	StageVision         = "vision"
	StageVisionComplete = "vision_complete"
	StageVisionFailed   = "vision_failed"
)

// AnalyzeRequest is the caller-facing analysis request.
type AnalyzeRequest struct {
	Provider       string           `json:"provider,omitempty"`
	Text           string           `json:"text"`
	VisionAnalysis string           `json:"visionAnalysis,omitempty"`
	System         string           `json:"system,omitempty"`
	Images         []flowgate.Image `json:"images,omitempty"`
}

// Validate checks the request before any stream is opened.
func (r AnalyzeRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return flowgate.InvalidInput("text is required")
	}
	if len(r.Images) > 0 {
		return flowgate.ValidateVisionRequest(flowgate.VisionRequest{Images: r.Images})
	}
	return nil
}

// Target is a resolved backend.
type Target struct {
	ID       string
	Model    string
	Provider flowgate.Provider
}

// Gateway resolves backends and relays their streams.
type Gateway struct {
	registry       *registry.Registry
	meter          flowgate.Meter
	health         *flowgate.HealthTracker
	idleTimeout    time.Duration
	requestTimeout time.Duration
	logger         zerolog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMeter sets the lifecycle observer.
func WithMeter(m flowgate.Meter) Option {
	return func(g *Gateway) { g.meter = m }
}

// WithHealthTracker sets the per-provider health tracker.
func WithHealthTracker(h *flowgate.HealthTracker) Option {
	return func(g *Gateway) { g.health = h }
}

// WithIdleTimeout cancels a stream that emits nothing for d. Zero disables.
func WithIdleTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.idleTimeout = d }
}

// WithRequestTimeout bounds the whole stream. Zero disables.
func WithRequestTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.requestTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway over reg. Without options it meters nothing and logs nothing.
func New(reg *registry.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		registry: reg,
		meter:    &meter.NoopMeter{},
		health:   flowgate.NewHealthTracker(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the underlying registry.
func (g *Gateway) Registry() *registry.Registry { return g.registry }

// Health returns the health tracker.
func (g *Gateway) Health() *flowgate.HealthTracker { return g.health }

// Resolve picks the backend for id, or the default when id is empty.
func (g *Gateway) Resolve(id string) (Target, error) {
	p, e, err := g.registry.Resolve(id)
	if err != nil {
		return Target{}, err
	}
	cfg, err := g.registry.ConfigFor(e.ID)
	if err != nil {
		return Target{}, err
	}
	model := cfg.Model
	if model == "" {
		model = cfg.VisionModel
	}
	return Target{ID: e.ID, Model: model, Provider: p}, nil
}

// Analyze resolves and streams in one call. Resolution and validation
// failures are returned before sink sees any event.
func (g *Gateway) Analyze(ctx context.Context, req AnalyzeRequest, sink flowgate.Sink) error {
	if err := req.Validate(); err != nil {
		return err
	}
	t, err := g.Resolve(req.Provider)
	if err != nil {
		return err
	}
	return g.Run(ctx, t, req, sink)
}

// Run performs the optional vision phase, then relays the extraction stream.
func (g *Gateway) Run(ctx context.Context, t Target, req AnalyzeRequest, sink flowgate.Sink) error {
	ctx, cancel := g.withRequestTimeout(ctx)
	defer cancel()

	analysis := flowgate.AnalysisRequest{
		Text:           req.Text,
		VisionAnalysis: req.VisionAnalysis,
		System:         req.System,
	}

	if len(req.Images) > 0 {
		if err := sink.Send(flowgate.Progress(StageVision, fmt.Sprintf("Analyzing %d image(s)", len(req.Images)))); err != nil {
			return err
		}

		res, err := g.analyzeVision(ctx, t, flowgate.VisionRequest{
			Images:      req.Images,
			ArticleText: req.Text,
		})
		if err != nil {
			// Vision is optional; extraction proceeds on the text alone.
			g.logger.Warn().Err(err).Str("provider", t.ID).Msg("vision analysis failed")
			if upstreamFault(err) {
				g.health.RecordFailure(t.ID, err)
			}
			if err := sink.Send(flowgate.Progress(StageVisionFailed, err.Error())); err != nil {
				return err
			}
		} else {
			if res.AnalysisText != "" {
				if analysis.VisionAnalysis != "" {
					analysis.VisionAnalysis += "\n\n"
				}
				analysis.VisionAnalysis += res.AnalysisText
			}
			msg := fmt.Sprintf("Image analysis complete (confidence: %s)", res.Confidence)
			if err := sink.Send(flowgate.Progress(StageVisionComplete, msg)); err != nil {
				return err
			}
		}
	}

	if ctx.Err() != nil {
		err := flowgate.FailStream(ctx, sink, ctx.Err())
		if upstreamFault(err) {
			g.health.RecordFailure(t.ID, err)
		}
		return err
	}
	return g.relay(ctx, t, analysis, sink)
}

// analyzeVision bounds the vision call by the idle window, since no event
// reaches the caller while it runs.
func (g *Gateway) analyzeVision(ctx context.Context, t Target, req flowgate.VisionRequest) (flowgate.VisionResult, error) {
	if g.idleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, g.idleTimeout, flowgate.ErrIdleTimeout)
		defer cancel()
	}
	res, err := t.Provider.AnalyzeVision(ctx, req)
	if err != nil && ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
	}
	return res, err
}

// Relay drives one provider stream into sink. The sink always observes
// exactly one done, preceded by an error event on failure, unless the sink
// itself has failed. The returned error describes the failure, if any.
func (g *Gateway) Relay(ctx context.Context, t Target, req flowgate.AnalysisRequest, sink flowgate.Sink) error {
	ctx, cancel := g.withRequestTimeout(ctx)
	defer cancel()
	return g.relay(ctx, t, req, sink)
}

// withRequestTimeout applies the absolute stream bound, if one is set.
func (g *Gateway) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.requestTimeout > 0 {
		return context.WithTimeoutCause(ctx, g.requestTimeout, flowgate.ErrRequestTimeout)
	}
	return ctx, func() {}
}

func (g *Gateway) relay(ctx context.Context, t Target, req flowgate.AnalysisRequest, sink flowgate.Sink) error {
	requestID := RequestID(ctx)
	start := time.Now()

	var estimated int64
	if prompt, err := t.Provider.FormatPrompt(req.Text, req.VisionAnalysis, req.System); err == nil {
		estimated = flowgate.EstimateTokens(prompt)
	}
	g.meter.OnStart(flowgate.StartEvent{
		RequestID:   requestID,
		Provider:    t.ID,
		Model:       t.Model,
		WithVision:  req.VisionAnalysis != "",
		EstimatedIn: estimated,
	})

	beat := make(chan struct{}, 1)
	gs := newGuard(sink, func() {
		select {
		case beat <- struct{}{}:
		default:
		}
	})

	eg, gctx := errgroup.WithContext(ctx)
	var streamErr error
	eg.Go(func() error {
		streamErr = t.Provider.Stream(gctx, req, gs)
		return errStreamReturned
	})
	if g.idleTimeout > 0 {
		eg.Go(func() error {
			return watchIdle(gctx, g.idleTimeout, beat)
		})
	}
	_ = eg.Wait()

	if streamErr == nil && ctx.Err() != nil {
		streamErr = context.Cause(ctx)
	}
	gs.finish(streamErr)

	st := gs.stats()
	outcome := streamErr
	if outcome == nil && st.Errored {
		outcome = errors.New(st.ErrMsg)
	}
	if st.Dropped > 0 {
		g.logger.Warn().
			Str("request_id", requestID).
			Str("provider", t.ID).
			Int("dropped", st.Dropped).
			Msg("provider emitted events after terminal")
	}

	switch {
	case outcome == nil:
		g.health.RecordSuccess(t.ID)
	case upstreamFault(outcome):
		g.health.RecordFailure(t.ID, outcome)
	}

	g.meter.OnResult(flowgate.ResultEvent{
		RequestID: requestID,
		Provider:  t.ID,
		Model:     t.Model,
		Success:   outcome == nil,
		Deltas:    st.Deltas,
		Bytes:     st.Bytes,
		Duration:  time.Since(start),
		Error:     outcome,
	})
	return outcome
}

var errStreamReturned = errors.New("gateway: provider stream returned")

// watchIdle fails with ErrIdleTimeout when no beat arrives within d.
func watchIdle(ctx context.Context, d time.Duration, beat <-chan struct{}) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-beat:
			timer.Reset(d)
		case <-timer.C:
			return flowgate.ErrIdleTimeout
		}
	}
}

// upstreamFault reports whether err reflects on the backend rather than the caller.
func upstreamFault(err error) bool {
	return errors.Is(err, flowgate.ErrUpstream) ||
		errors.Is(err, flowgate.ErrIdleTimeout) ||
		errors.Is(err, flowgate.ErrRequestTimeout)
}

type requestIDKey struct{}

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached to ctx, or a fresh one.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
