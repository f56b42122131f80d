package gateway

import (
	"sync"

	"github.com/ineyio/flowgate"
)

// guard enforces the terminal contract on whatever a provider emits: at most
// one error, exactly one done, nothing after done.
type guard struct {
	mu      sync.Mutex
	next    flowgate.Sink
	onEvent func()

	done    bool
	errored bool
	errMsg  string
	deltas  int
	bytes   int
	dropped int
	sendErr error
}

func newGuard(next flowgate.Sink, onEvent func()) *guard {
	return &guard{next: next, onEvent: onEvent}
}

func (g *guard) Send(e flowgate.StreamEvent) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sendErr != nil {
		return g.sendErr
	}
	if g.done || (g.errored && e.Type != flowgate.EventDone) {
		g.dropped++
		return flowgate.ErrSinkClosed
	}

	if g.onEvent != nil {
		g.onEvent()
	}
	if err := g.next.Send(e); err != nil {
		g.sendErr = err
		return err
	}

	switch e.Type {
	case flowgate.EventContentDelta:
		g.deltas++
		g.bytes += len(e.Text)
	case flowgate.EventError:
		g.errored = true
		g.errMsg = e.Message
	case flowgate.EventDone:
		g.done = true
	}
	return nil
}

// finish closes the stream if the provider returned without doing so.
// streamErr is what the provider returned.
func (g *guard) finish(streamErr error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.done || g.sendErr != nil {
		return
	}
	if !g.errored && streamErr != nil {
		if err := g.next.Send(flowgate.ErrorEvent(streamErr.Error())); err != nil {
			g.sendErr = err
			return
		}
		g.errored = true
		g.errMsg = streamErr.Error()
	}
	if err := g.next.Send(flowgate.Done()); err != nil {
		g.sendErr = err
		return
	}
	g.done = true
}

type guardStats struct {
	Done    bool
	Errored bool
	ErrMsg  string
	Deltas  int
	Bytes   int
	Dropped int
	SendErr error
}

func (g *guard) stats() guardStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return guardStats{
		Done:    g.done,
		Errored: g.errored,
		ErrMsg:  g.errMsg,
		Deltas:  g.deltas,
		Bytes:   g.bytes,
		Dropped: g.dropped,
		SendErr: g.sendErr,
	}
}
