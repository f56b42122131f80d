package flowgate_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	fg "github.com/ineyio/flowgate"
)

func TestCombineText_WithoutVision(t *testing.T) {
	assert.Equal(t, "article", fg.CombineText("article", ""))
	assert.Equal(t, "article", fg.CombineText("article", "   "))
}

func TestCombineText_VisionFirst(t *testing.T) {
	got := fg.CombineText("the article", "a diagram")
	assert.Equal(t, "## IMAGE ANALYSIS\na diagram\n\n## ARTICLE TEXT\nthe article", got)
	assert.Less(t, strings.Index(got, fg.VisionSectionHeader), strings.Index(got, fg.ArticleSectionHeader))
}

func TestCombineText_TruncatesIncludingVision(t *testing.T) {
	got := fg.CombineText(strings.Repeat("a", fg.MaxPromptChars), "vision")
	assert.Equal(t, fg.MaxPromptChars, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, fg.TruncationNotice))
	assert.True(t, strings.HasPrefix(got, fg.VisionSectionHeader))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", fg.Truncate("short", 10))

	exact := strings.Repeat("x", 100)
	assert.Equal(t, exact, fg.Truncate(exact, 100))

	got := fg.Truncate(strings.Repeat("x", 101), 100)
	assert.Equal(t, 100, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, fg.TruncationNotice))
}

func TestTruncate_CountsRunes(t *testing.T) {
	// 40 runes, 120 bytes.
	s := strings.Repeat("侵", 40)
	assert.Equal(t, s, fg.Truncate(s, 40))

	got := fg.Truncate(strings.Repeat("侵", 100), 50)
	assert.Equal(t, 50, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestTruncate_LimitBelowNotice(t *testing.T) {
	assert.Equal(t, "abcde", fg.Truncate("abcdefghij", 5))
}

func TestSystemOrDefault(t *testing.T) {
	assert.Equal(t, fg.DefaultSystemPrompt, fg.SystemOrDefault(""))
	assert.Equal(t, fg.DefaultSystemPrompt, fg.SystemOrDefault(" \n"))
	assert.Equal(t, "custom", fg.SystemOrDefault("custom"))
}

func TestBuildUserPrompt(t *testing.T) {
	got := fg.BuildUserPrompt("APT29 phished the victim", "")
	assert.True(t, strings.HasPrefix(got, fg.ExtractionInstructions))
	assert.True(t, strings.HasSuffix(got, "APT29 phished the victim"))
	assert.Contains(t, got, "technique_id")
}

func TestVisionInstructions(t *testing.T) {
	got := fg.VisionInstructions(fg.VisionRequest{ArticleText: "context"})
	assert.True(t, strings.HasPrefix(got, fg.DefaultVisionPrompt))
	assert.True(t, strings.HasSuffix(got, "ARTICLE CONTEXT:\ncontext"))

	got = fg.VisionInstructions(fg.VisionRequest{Prompt: "describe"})
	assert.Equal(t, "describe", got)

	got = fg.VisionInstructions(fg.VisionRequest{ArticleText: strings.Repeat("a", 10000)})
	assert.LessOrEqual(t, len(got), len(fg.DefaultVisionPrompt)+len("\n\nARTICLE CONTEXT:\n")+fg.VisionContextChars)
}
