package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hexmark.yaml")
	require.NoError(t, WriteSampleConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# hexmark configuration file")

	// The sample parses back into a valid configuration
	var cfg Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestWriteSampleConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hexmark.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o600))

	err := WriteSampleConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
