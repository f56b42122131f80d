package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/flowgate"
)

func TestTextSink(t *testing.T) {
	var out, status bytes.Buffer
	sink := textSink(&out, &status)

	require.NoError(t, sink.Send(flowgate.Progress("vision", "Analyzing 1 image(s)")))
	require.NoError(t, sink.Send(flowgate.ContentDelta(`{"nodes":`)))
	require.NoError(t, sink.Send(flowgate.ContentDelta(`[]}`)))
	require.NoError(t, sink.Send(flowgate.ErrorEvent("idle timeout")))
	require.NoError(t, sink.Send(flowgate.Done()))

	assert.Equal(t, `{"nodes":[]}`, out.String())
	assert.Equal(t, "[vision] Analyzing 1 image(s)\nerror: idle timeout\n", status.String())
}

func TestEventSink(t *testing.T) {
	var out bytes.Buffer
	sink := eventSink(&out)

	require.NoError(t, sink.Send(flowgate.ContentDelta("a")))
	require.NoError(t, sink.Send(flowgate.Done()))

	assert.Equal(t, "{\"type\":\"content_block_delta\",\"delta\":{\"text\":\"a\"}}\n[DONE]\n", out.String())
}

func TestLoadImages(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "diagram.PNG")
	require.NoError(t, os.WriteFile(png, []byte("hello"), 0o600))

	images, err := loadImages([]string{png})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "image/png", images[0].MediaType)
	assert.Equal(t, "aGVsbG8=", images[0].Base64Data)

	_, err = loadImages([]string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}

func TestReadArticle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("APT report"), 0o600))

	text, err := readArticle([]string{path})
	require.NoError(t, err)
	assert.Equal(t, "APT report", text)
}
