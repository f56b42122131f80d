package flowgate

// AnalysisRequest is a single attack-flow extraction request.
type AnalysisRequest struct {
	Text           string `json:"text"`
	VisionAnalysis string `json:"visionAnalysis,omitempty"`
	System         string `json:"system,omitempty"`
}

// Image is one inline image for vision analysis.
type Image struct {
	Base64Data string `json:"base64Data"`
	MediaType  string `json:"mediaType"`
}

// VisionRequest asks a backend to describe images in the context of an article.
type VisionRequest struct {
	Images      []Image `json:"images"`
	ArticleText string  `json:"articleText"`
	Prompt      string  `json:"prompt,omitempty"`
}

// Confidence grades a vision result.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// VisionResult is the outcome of AnalyzeVision.
type VisionResult struct {
	AnalysisText string     `json:"analysisText"`
	TokensUsed   *int64     `json:"tokensUsed,omitempty"`
	Confidence   Confidence `json:"confidence,omitempty"`
}

// Message is one chat message in a backend prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the backend-native message representation returned by FormatPrompt.
// Backends with a top-level system field set System; chat-style backends carry
// the persona as a system-role entry in Messages instead.
type Prompt struct {
	System   string
	Messages []Message
}

// UserText returns the content of the last user message.
func (p Prompt) UserText() string {
	for i := len(p.Messages) - 1; i >= 0; i-- {
		if p.Messages[i].Role == "user" {
			return p.Messages[i].Content
		}
	}
	return ""
}

// ProviderDescriptor describes a registered backend for listings.
type ProviderDescriptor struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"displayName"`
	Models       []string `json:"models"`
	DefaultModel string   `json:"defaultModel"`
	Configured   bool     `json:"configured"`
}

// Int64Ptr returns a pointer to the given int64.
func Int64Ptr(v int64) *int64 { return &v }
