package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := `# comment
TEST_NEXARCHIVE_A=one
export TEST_NEXARCHIVE_B="two words"
TEST_NEXARCHIVE_C='three'
TEST_NEXARCHIVE_PRESET=from-file
not a pair
=novalue
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TEST_NEXARCHIVE_PRESET", "from-env")
	for _, k := range []string{"TEST_NEXARCHIVE_A", "TEST_NEXARCHIVE_B", "TEST_NEXARCHIVE_C"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "one", os.Getenv("TEST_NEXARCHIVE_A"))
	assert.Equal(t, "two words", os.Getenv("TEST_NEXARCHIVE_B"))
	assert.Equal(t, "three", os.Getenv("TEST_NEXARCHIVE_C"))
	assert.Equal(t, "from-env", os.Getenv("TEST_NEXARCHIVE_PRESET"))
}

func TestLoadEnvOptional(t *testing.T) {
	assert.NoError(t, LoadEnvOptional(filepath.Join(t.TempDir(), "missing.env")))
	assert.Error(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}
