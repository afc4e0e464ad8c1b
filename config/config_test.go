package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.StrictMode)
	assert.Equal(t, 1, cfg.LogLevel)
	assert.Empty(t, cfg.CacheDB)
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sotjit.yaml")
	content := "strict_mode: true\nlog_level: 3\ncache_db: /tmp/sotjit-cache.db\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.StrictMode)
	assert.Equal(t, 3, cfg.LogLevel)
	assert.Equal(t, "/tmp/sotjit-cache.db", cfg.CacheDB)
}

func TestLoad_LogLevelIsClampedToZeroToFive(t *testing.T) {
	tooHigh := filepath.Join(t.TempDir(), "high.yaml")
	require.NoError(t, os.WriteFile(tooHigh, []byte("log_level: 99\n"), 0o644))
	cfg, err := Load(tooHigh)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.LogLevel)

	tooLow := filepath.Join(t.TempDir(), "low.yaml")
	require.NoError(t, os.WriteFile(tooLow, []byte("log_level: -7\n"), 0o644))
	cfg2, err := Load(tooLow)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg2.LogLevel)
}

func TestLoad_MalformedYAMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strict_mode: [this is not a bool\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
