package flowgate_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fg "github.com/ineyio/flowgate"
)

func TestLoadEnv_Layering(t *testing.T) {
	base := writeFile(t, "base.env", "FLOWGATE_TEST_A=base\nFLOWGATE_TEST_B=base\nFLOWGATE_TEST_C=base\n")
	local := writeFile(t, "local.env", "FLOWGATE_TEST_B=local\nFLOWGATE_TEST_C=local\n")
	t.Setenv("FLOWGATE_TEST_C", "process")

	env, err := fg.LoadEnv(base, local, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "base", env.Get("FLOWGATE_TEST_A"))
	assert.Equal(t, "local", env.Get("FLOWGATE_TEST_B"))
	assert.Equal(t, "process", env.Get("FLOWGATE_TEST_C"))
}

func TestEnvGetAndFirst(t *testing.T) {
	env := fg.Env{"A": "  padded ", "B": "", "C": "c"}
	assert.Equal(t, "padded", env.Get("A"))
	assert.Equal(t, "", env.Get("missing"))
	assert.Equal(t, "c", env.First("B", "missing", "C", "A"))
	assert.Equal(t, "", env.First("B"))
}

func TestEnvFromOS(t *testing.T) {
	t.Setenv("FLOWGATE_TEST_OS", "x=y")
	assert.Equal(t, "x=y", fg.EnvFromOS().Get("FLOWGATE_TEST_OS"))
}
