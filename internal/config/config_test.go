package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoOverrides(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(64<<20), cfg.ScratchThresholdBytes)
	assert.False(t, cfg.ContinueOnError)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadReadsEnvironmentOverride(t *testing.T) {
	t.Setenv("VDFS4_CONTINUE_ON_ERROR", "true")
	t.Setenv("VDFS4_LOG_LEVEL", "debug")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.True(t, cfg.ContinueOnError)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vdfs4.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log-format: json\nscratch-threshold-bytes: 1048576\n"), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, int64(1048576), cfg.ScratchThresholdBytes)
}

func TestLoadRejectsNonPositiveScratchThreshold(t *testing.T) {
	t.Setenv("VDFS4_SCRATCH_THRESHOLD_BYTES", "0")
	_, err := Load(viper.New(), "")
	assert.Error(t, err)
}
