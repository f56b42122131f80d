package flowgate

import (
	"context"
	"encoding/base64"
	"strings"
)

// Provider is the capability contract every LLM backend adapter satisfies.
type Provider interface {
	// Name returns the human-readable backend name (e.g. "Anthropic Claude").
	Name() string

	// IsConfigured reports whether the instance holds the minimum
	// credentials/endpoint its backend requires.
	IsConfigured() bool

	// FormatPrompt builds the backend-native prompt. Pure; no I/O.
	FormatPrompt(text, visionAnalysis, system string) (Prompt, error)

	// Stream runs one extraction and emits canonical events into sink. Every
	// call ends with exactly one done event, preceded by an error event on
	// failure; the returned error mirrors that failure for the caller's logs.
	Stream(ctx context.Context, req AnalysisRequest, sink Sink) error

	// AnalyzeVision describes images in the context of an article. Backends
	// without vision support return a low-confidence placeholder instead of failing.
	AnalyzeVision(ctx context.Context, req VisionRequest) (VisionResult, error)
}

// ProviderConfig is the resolved configuration for one backend instance.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key" json:"-"`
	Model        string `yaml:"model" json:"model"`
	BaseURL      string `yaml:"base_url" json:"baseUrl,omitempty"`
	ProviderName string `yaml:"provider_name" json:"providerName"`

	// VisionModel is only read by the local backend.
	VisionModel string `yaml:"vision_model" json:"visionModel,omitempty"`
}

// Base supplies the default contract behaviour. Backends embed it and
// override what they support; anything left unimplemented fails with
// ErrNotImplemented naming the backend.
type Base struct {
	Backend string
	Config  ProviderConfig
}

func (b Base) Name() string {
	if b.Config.ProviderName != "" {
		return b.Config.ProviderName
	}
	return b.Backend
}

// IsConfigured requires both an API key and a model.
func (b Base) IsConfigured() bool {
	return b.Config.APIKey != "" && b.Config.Model != ""
}

func (b Base) FormatPrompt(string, string, string) (Prompt, error) {
	return Prompt{}, NotImplemented(b.Backend, "FormatPrompt")
}

func (b Base) Stream(context.Context, AnalysisRequest, Sink) error {
	return NotImplemented(b.Backend, "Stream")
}

func (b Base) AnalyzeVision(context.Context, VisionRequest) (VisionResult, error) {
	return VisionResult{}, NotImplemented(b.Backend, "AnalyzeVision")
}

var supportedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ValidateVisionRequest checks that the request carries at least one
// well-formed image.
func ValidateVisionRequest(req VisionRequest) error {
	if len(req.Images) == 0 {
		return InvalidInput("vision request requires at least one image")
	}
	for i, img := range req.Images {
		if img.Base64Data == "" {
			return InvalidInput("image[%d]: empty data", i)
		}
		if !supportedMediaTypes[strings.ToLower(img.MediaType)] {
			return InvalidInput("image[%d]: unsupported media type %q", i, img.MediaType)
		}
		if _, err := base64.StdEncoding.DecodeString(img.Base64Data); err != nil {
			return InvalidInput("image[%d]: data is not valid base64", i)
		}
	}
	return nil
}

// DataURI renders an image as an inline data URI.
func (img Image) DataURI() string {
	return "data:" + img.MediaType + ";base64," + img.Base64Data
}
