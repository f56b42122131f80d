package flowgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventType tags a canonical StreamEvent.
type EventType string

const (
	EventProgress     EventType = "progress"
	EventContentDelta EventType = "content_block_delta"
	EventError        EventType = "error"
	EventDone         EventType = "done"
)

// DoneSentinel is the wire form of the done event.
const DoneSentinel = "[DONE]"

// StreamEvent is the provider-independent streaming unit.
type StreamEvent struct {
	Type    EventType
	Stage   string // progress
	Message string // progress, error
	Text    string // content_block_delta
}

// Progress returns a progress event.
func Progress(stage, message string) StreamEvent {
	return StreamEvent{Type: EventProgress, Stage: stage, Message: message}
}

// ContentDelta returns a content delta event.
func ContentDelta(text string) StreamEvent {
	return StreamEvent{Type: EventContentDelta, Text: text}
}

// ErrorEvent returns an error event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

// Done returns the terminal event.
func Done() StreamEvent {
	return StreamEvent{Type: EventDone}
}

// IsTerminal reports whether the event closes a stream.
func (e StreamEvent) IsTerminal() bool { return e.Type == EventDone }

type progressWire struct {
	Type    EventType `json:"type"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
}

type deltaWire struct {
	Type  EventType `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type errorWire struct {
	Type  EventType `json:"type"`
	Error string    `json:"error"`
}

// MarshalJSON encodes the event in its wire shape. The done event encodes
// as the bare [DONE] sentinel rather than a JSON object; use Encode for the
// framing-ready payload.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventProgress:
		return json.Marshal(progressWire{Type: e.Type, Stage: e.Stage, Message: e.Message})
	case EventContentDelta:
		w := deltaWire{Type: e.Type}
		w.Delta.Text = e.Text
		return json.Marshal(w)
	case EventError:
		return json.Marshal(errorWire{Type: e.Type, Error: e.Message})
	case EventDone:
		return json.Marshal(DoneSentinel)
	default:
		return nil, fmt.Errorf("flowgate: unknown event type %q", e.Type)
	}
}

// Encode returns the payload carried by one transport frame: a JSON object,
// or the literal [DONE] for the terminal event.
func (e StreamEvent) Encode() ([]byte, error) {
	if e.Type == EventDone {
		return []byte(DoneSentinel), nil
	}
	return e.MarshalJSON()
}

// DecodeEvent parses one frame payload produced by Encode.
func DecodeEvent(data []byte) (StreamEvent, error) {
	if string(data) == DoneSentinel {
		return Done(), nil
	}
	var raw struct {
		Type    EventType `json:"type"`
		Stage   string    `json:"stage"`
		Message string    `json:"message"`
		Error   string    `json:"error"`
		Delta   struct {
			Text string `json:"text"`
		} `json:"delta"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return StreamEvent{}, fmt.Errorf("flowgate: decode event: %w", err)
	}
	switch raw.Type {
	case EventProgress:
		return Progress(raw.Stage, raw.Message), nil
	case EventContentDelta:
		return ContentDelta(raw.Delta.Text), nil
	case EventError:
		return ErrorEvent(raw.Error), nil
	default:
		return StreamEvent{}, fmt.Errorf("flowgate: unknown event type %q", raw.Type)
	}
}

// Sink receives canonical events for one stream. Send returns an error when
// the consumer is gone; providers stop reading upstream when that happens.
type Sink interface {
	Send(event StreamEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(StreamEvent) error

func (f SinkFunc) Send(e StreamEvent) error { return f(e) }

// Collector is a Sink that records events in memory.
type Collector struct {
	Events []StreamEvent
}

func (c *Collector) Send(e StreamEvent) error {
	c.Events = append(c.Events, e)
	return nil
}

// Text concatenates all delta text received so far.
func (c *Collector) Text() string {
	var b strings.Builder
	for _, e := range c.Events {
		if e.Type == EventContentDelta {
			b.WriteString(e.Text)
		}
	}
	return b.String()
}

// Types returns the event types in order.
func (c *Collector) Types() []EventType {
	out := make([]EventType, len(c.Events))
	for i, e := range c.Events {
		out[i] = e.Type
	}
	return out
}

// FailStream emits error followed by done and returns err. When ctx has been
// cancelled, the cancellation cause is reported instead of the transport error
// it produced.
func FailStream(ctx context.Context, sink Sink, err error) error {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
	}
	// The consumer may already be gone; there is nobody left to tell.
	if sendErr := sink.Send(ErrorEvent(err.Error())); sendErr == nil {
		_ = sink.Send(Done())
	}
	return err
}

// FinishStream emits done.
func FinishStream(sink Sink) error {
	return sink.Send(Done())
}

// ErrSinkClosed is returned by sinks whose consumer has disconnected.
var ErrSinkClosed = errors.New("flowgate: sink closed")
