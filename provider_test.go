package flowgate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fg "github.com/ineyio/flowgate"
)

func TestBase_DefaultsFailNamingBackend(t *testing.T) {
	b := fg.Base{Backend: "stub"}

	_, err := b.FormatPrompt("t", "", "")
	assert.ErrorIs(t, err, fg.ErrNotImplemented)
	assert.Contains(t, err.Error(), "stub")

	err = b.Stream(context.Background(), fg.AnalysisRequest{Text: "t"}, &fg.Collector{})
	assert.ErrorIs(t, err, fg.ErrNotImplemented)

	_, err = b.AnalyzeVision(context.Background(), fg.VisionRequest{})
	assert.ErrorIs(t, err, fg.ErrNotImplemented)
}

func TestBase_NameAndConfigured(t *testing.T) {
	b := fg.Base{Backend: "stub"}
	assert.Equal(t, "stub", b.Name())
	assert.False(t, b.IsConfigured())

	b.Config = fg.ProviderConfig{APIKey: "k", Model: "m", ProviderName: "Stub Backend"}
	assert.Equal(t, "Stub Backend", b.Name())
	assert.True(t, b.IsConfigured())

	b.Config.Model = ""
	assert.False(t, b.IsConfigured())
}

func TestValidateVisionRequest(t *testing.T) {
	ok := fg.Image{Base64Data: "aGVsbG8=", MediaType: "image/PNG"}
	require.NoError(t, fg.ValidateVisionRequest(fg.VisionRequest{Images: []fg.Image{ok}}))

	tests := []struct {
		name string
		req  fg.VisionRequest
	}{
		{"no images", fg.VisionRequest{}},
		{"empty data", fg.VisionRequest{Images: []fg.Image{{MediaType: "image/png"}}}},
		{"bad media type", fg.VisionRequest{Images: []fg.Image{{Base64Data: "aGVsbG8=", MediaType: "image/tiff"}}}},
		{"bad base64", fg.VisionRequest{Images: []fg.Image{ok, {Base64Data: "%%%", MediaType: "image/png"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, fg.ValidateVisionRequest(tt.req), fg.ErrInvalidInput)
		})
	}
}

func TestImageDataURI(t *testing.T) {
	img := fg.Image{Base64Data: "aGVsbG8=", MediaType: "image/jpeg"}
	assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", img.DataURI())
}

func TestPromptUserText(t *testing.T) {
	p := fg.Prompt{Messages: []fg.Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "last"},
	}}
	assert.Equal(t, "last", p.UserText())
	assert.Empty(t, fg.Prompt{}.UserText())
}
