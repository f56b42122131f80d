package flowgate_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fg "github.com/ineyio/flowgate"
)

func TestEncode_WireShapes(t *testing.T) {
	tests := []struct {
		name  string
		event fg.StreamEvent
		want  string
	}{
		{"progress", fg.Progress("vision", "Analyzing 2 image(s)"), `{"type":"progress","stage":"vision","message":"Analyzing 2 image(s)"}`},
		{"delta", fg.ContentDelta(`{"nodes":`), `{"type":"content_block_delta","delta":{"text":"{\"nodes\":"}}`},
		{"error", fg.ErrorEvent("rate limited"), `{"type":"error","error":"rate limited"}`},
		{"done", fg.Done(), `[DONE]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.event.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))

			back, err := fg.DecodeEvent(data)
			require.NoError(t, err)
			assert.Equal(t, tt.event, back)
		})
	}
}

func TestMarshalJSON_DoneIsQuotedSentinel(t *testing.T) {
	data, err := json.Marshal([]fg.StreamEvent{fg.ContentDelta("a"), fg.Done()})
	require.NoError(t, err)
	assert.Equal(t, `[{"type":"content_block_delta","delta":{"text":"a"}},"[DONE]"]`, string(data))
}

func TestMarshalJSON_UnknownType(t *testing.T) {
	_, err := fg.StreamEvent{Type: "bogus"}.Encode()
	assert.Error(t, err)
}

func TestDecodeEvent_Rejects(t *testing.T) {
	_, err := fg.DecodeEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = fg.DecodeEvent([]byte(`{"type":"message_start"}`))
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, fg.Done().IsTerminal())
	assert.False(t, fg.ErrorEvent("x").IsTerminal())
	assert.False(t, fg.ContentDelta("x").IsTerminal())
}

func TestCollector(t *testing.T) {
	var c fg.Collector
	require.NoError(t, c.Send(fg.Progress("vision", "start")))
	require.NoError(t, c.Send(fg.ContentDelta("he")))
	require.NoError(t, c.Send(fg.ContentDelta("llo")))
	require.NoError(t, c.Send(fg.Done()))

	assert.Equal(t, "hello", c.Text())
	assert.Equal(t, []fg.EventType{fg.EventProgress, fg.EventContentDelta, fg.EventContentDelta, fg.EventDone}, c.Types())
}

func TestFailStream_EmitsErrorThenDone(t *testing.T) {
	var c fg.Collector
	boom := errors.New("boom")

	err := fg.FailStream(context.Background(), &c, boom)
	assert.ErrorIs(t, err, boom)
	require.Len(t, c.Events, 2)
	assert.Equal(t, fg.ErrorEvent("boom"), c.Events[0])
	assert.Equal(t, fg.Done(), c.Events[1])
}

func TestFailStream_ReportsCancellationCause(t *testing.T) {
	var c fg.Collector
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(fg.ErrIdleTimeout)

	err := fg.FailStream(ctx, &c, errors.New("read tcp: use of closed network connection"))
	assert.ErrorIs(t, err, fg.ErrIdleTimeout)
	require.Len(t, c.Events, 2)
	assert.Equal(t, fg.ErrIdleTimeout.Error(), c.Events[0].Message)
}

func TestFailStream_SkipsDoneWhenSinkGone(t *testing.T) {
	var sent int
	sink := fg.SinkFunc(func(fg.StreamEvent) error {
		sent++
		return fg.ErrSinkClosed
	})

	err := fg.FailStream(context.Background(), sink, errors.New("x"))
	assert.EqualError(t, err, "x")
	assert.Equal(t, 1, sent)
}

func TestFinishStream(t *testing.T) {
	var c fg.Collector
	require.NoError(t, fg.FinishStream(&c))
	assert.Equal(t, []fg.EventType{fg.EventDone}, c.Types())
}
