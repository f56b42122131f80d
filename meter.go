package flowgate

import "time"

// Meter observes stream lifecycle events for monitoring/logging.
type Meter interface {
	// OnStart is called once a provider has been resolved and the relay begins.
	OnStart(event StartEvent)

	// OnResult is called when the relay has delivered its terminal event.
	OnResult(event ResultEvent)
}

// StartEvent describes a stream about to start.
type StartEvent struct {
	RequestID   string
	Provider    string
	Model       string
	WithVision  bool
	EstimatedIn int64
}

// ResultEvent describes the outcome of a stream.
type ResultEvent struct {
	RequestID string
	Provider  string
	Model     string
	Success   bool
	Deltas    int
	Bytes     int
	Duration  time.Duration
	Error     error
}

