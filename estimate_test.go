package flowgate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	fg "github.com/ineyio/flowgate"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(3), fg.EstimateTokens(fg.Prompt{}))

	p := fg.Prompt{
		System: strings.Repeat("s", 40),
		Messages: []fg.Message{
			{Role: "user", Content: strings.Repeat("u", 400)},
		},
	}
	// system 10+4, message 100+4, base 3
	assert.Equal(t, int64(121), fg.EstimateTokens(p))
}
