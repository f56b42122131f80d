package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/flowgate"
)

const pngPixel = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

// chunkedHandler writes each piece as its own flushed transport chunk.
func chunkedHandler(t *testing.T, captured *map[string]any, pieces ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, piece := range pieces {
			fmt.Fprint(w, piece)
			flusher.Flush()
		}
	}
}

func newTestProvider(t *testing.T, cfg flowgate.ProviderConfig, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	return New(cfg, WithHTTPClient(srv.Client()))
}

func TestIsConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  flowgate.ProviderConfig
		want bool
	}{
		{"vision only", flowgate.ProviderConfig{BaseURL: "http://localhost:11434", VisionModel: "llava"}, true},
		{"text only", flowgate.ProviderConfig{BaseURL: "http://localhost:11434", Model: "llama3.1"}, true},
		{"both", flowgate.ProviderConfig{BaseURL: "http://localhost:11434", Model: "llama3.1", VisionModel: "llava"}, true},
		{"no endpoint", flowgate.ProviderConfig{Model: "llama3.1", VisionModel: "llava"}, false},
		{"no model", flowgate.ProviderConfig{BaseURL: "http://localhost:11434"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.cfg).IsConfigured())
		})
	}
}

func TestStream_WholeLines(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, flowgate.ProviderConfig{Model: "llama3.1"}, chunkedHandler(t, &body,
		`{"model":"llama3.1","response":"{\"nodes\"","done":false}`+"\n",
		`{"model":"llama3.1","response":":[]}","done":false}`+"\n",
		`{"model":"llama3.1","response":"","done":true,"eval_count":12}`+"\n",
	))

	var c flowgate.Collector
	require.NoError(t, p.Stream(context.Background(), flowgate.AnalysisRequest{Text: "report"}, &c))
	assert.Equal(t, []flowgate.EventType{flowgate.EventContentDelta, flowgate.EventContentDelta, flowgate.EventDone}, c.Types())
	assert.Equal(t, `{"nodes":[]}`, c.Text())

	assert.Equal(t, "llama3.1", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, flowgate.DefaultSystemPrompt, body["system"])
	opts := body["options"].(map[string]any)
	assert.InDelta(t, 0.1, opts["temperature"], 1e-9)
	assert.EqualValues(t, 16000, opts["num_predict"])
}

func TestStream_ReassemblesSplitObjects(t *testing.T) {
	p := newTestProvider(t, flowgate.ProviderConfig{VisionModel: "llava"}, chunkedHandler(t, nil,
		`{"response":"al`,
		`pha","done":false}`+"\n"+`{"resp`,
		`onse":"beta","done":false}`+"\n",
		`{"response":"","done":true}`+"\n",
	))

	var c flowgate.Collector
	require.NoError(t, p.Stream(context.Background(), flowgate.AnalysisRequest{Text: "x"}, &c))
	assert.Equal(t, []flowgate.EventType{flowgate.EventContentDelta, flowgate.EventContentDelta, flowgate.EventDone}, c.Types())
	assert.Equal(t, "alphabeta", c.Text())
}

func TestStream_TrailingFragmentForwarded(t *testing.T) {
	p := newTestProvider(t, flowgate.ProviderConfig{Model: "llama3.1"}, chunkedHandler(t, nil,
		`{"response":"ok","done":false}`+"\n",
		`{"response":"cut off`,
	))

	var c flowgate.Collector
	require.NoError(t, p.Stream(context.Background(), flowgate.AnalysisRequest{Text: "x"}, &c))
	require.Len(t, c.Events, 3)
	assert.Equal(t, "ok", c.Events[0].Text)
	assert.Equal(t, `{"response":"cut off`, c.Events[1].Text)
	assert.Equal(t, flowgate.EventDone, c.Events[2].Type)
}

func TestStream_NonObjectLinesForwarded(t *testing.T) {
	p := newTestProvider(t, flowgate.ProviderConfig{Model: "llama3.1"}, chunkedHandler(t, nil,
		`"warming up"`+"\n",
		`42`+"\n",
		`{"response":"ok","done":false}`+"\n",
		`{"response":"","done":true}`+"\n",
	))

	var c flowgate.Collector
	require.NoError(t, p.Stream(context.Background(), flowgate.AnalysisRequest{Text: "x"}, &c))
	require.Len(t, c.Events, 4)
	assert.Equal(t, `"warming up"`, c.Events[0].Text)
	assert.Equal(t, `42`, c.Events[1].Text)
	assert.Equal(t, "ok", c.Events[2].Text)
	assert.Equal(t, flowgate.EventDone, c.Events[3].Type)
}

func TestStream_ErrorObject(t *testing.T) {
	p := newTestProvider(t, flowgate.ProviderConfig{Model: "llama3.1"}, chunkedHandler(t, nil,
		`{"error":"model 'llama3.1' not found"}`+"\n",
	))

	var c flowgate.Collector
	err := p.Stream(context.Background(), flowgate.AnalysisRequest{Text: "x"}, &c)
	require.Error(t, err)
	assert.ErrorIs(t, err, flowgate.ErrUpstream)
	assert.Equal(t, []flowgate.EventType{flowgate.EventError, flowgate.EventDone}, c.Types())
}

func TestStream_HTTPError(t *testing.T) {
	p := newTestProvider(t, flowgate.ProviderConfig{Model: "missing"}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"missing\" not found, try pulling it first"}`)
	})

	var c flowgate.Collector
	err := p.Stream(context.Background(), flowgate.AnalysisRequest{Text: "x"}, &c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "try pulling it first")
	assert.Equal(t, []flowgate.EventType{flowgate.EventError, flowgate.EventDone}, c.Types())
}

func TestStream_Unconfigured(t *testing.T) {
	p := New(flowgate.ProviderConfig{})

	var c flowgate.Collector
	err := p.Stream(context.Background(), flowgate.AnalysisRequest{Text: "x"}, &c)
	assert.ErrorIs(t, err, flowgate.ErrUnconfigured)
	assert.Equal(t, []flowgate.EventType{flowgate.EventError, flowgate.EventDone}, c.Types())
}

func TestAnalyzeVision_Placeholder(t *testing.T) {
	p := New(flowgate.ProviderConfig{BaseURL: "http://127.0.0.1:1", VisionModel: "llava"})

	res, err := p.AnalyzeVision(context.Background(), flowgate.VisionRequest{
		Images: []flowgate.Image{{Base64Data: pngPixel, MediaType: "image/png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, VisionPlaceholder, res.AnalysisText)
	assert.Equal(t, flowgate.ConfidenceLow, res.Confidence)
	assert.Nil(t, res.TokensUsed)

	_, err = p.AnalyzeVision(context.Background(), flowgate.VisionRequest{})
	assert.ErrorIs(t, err, flowgate.ErrInvalidInput)
}
