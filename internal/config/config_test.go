package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	os.Setenv("AIPO_OUTPUT_DIR", "/tmp/aipo-test")
	os.Setenv("AIPO_SEED", "42")
	defer os.Unsetenv("AIPO_OUTPUT_DIR")
	defer os.Unsetenv("AIPO_SEED")

	c := Default()
	require.NoError(t, c.LoadFromEnv())

	assert.Equal(t, "/tmp/aipo-test", c.OutputDir)
	assert.Equal(t, int64(42), c.Seed)
}

func TestLoadFromEnv_BadSeed(t *testing.T) {
	os.Setenv("AIPO_SEED", "not-a-number")
	defer os.Unsetenv("AIPO_SEED")

	c := Default()
	err := c.LoadFromEnv()
	assert.Error(t, err)
}

func TestValidate_RejectsBadMaxTurns(t *testing.T) {
	c := Default()
	c.MaxTurns = 0
	assert.Error(t, c.Validate())

	c.MaxTurns = 101
	assert.Error(t, c.Validate())
}

func TestResolvedWorkers(t *testing.T) {
	c := Default()
	assert.Equal(t, 8, c.ResolvedWorkers(16))
	assert.Equal(t, 4, c.ResolvedWorkers(1))

	c.Workers = 3
	assert.Equal(t, 3, c.ResolvedWorkers(16))
}
