package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "valvectl.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "OASIS", cfg.Device.NamePrefix)
	assert.Equal(t, 10, cfg.Device.ScanSeconds)
	assert.Equal(t, uint32(2000), cfg.Calibration.VolumeML)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
[device]
name_prefix = "GARDEN"
scan_seconds = 5

[calibration]
volume_ml = 1000

[metrics]
addr = ":9200"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "GARDEN", cfg.Device.NamePrefix)
	assert.Equal(t, 5, cfg.Device.ScanSeconds)
	assert.Equal(t, uint32(1000), cfg.Calibration.VolumeML)
	assert.Equal(t, ":9200", cfg.Metrics.Addr)
}

func TestLoadConfigPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[metrics]
addr = ":9200"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "OASIS", cfg.Device.NamePrefix)
	assert.Equal(t, ":9200", cfg.Metrics.Addr)
}

func TestLoadConfigRejectsSmallVolume(t *testing.T) {
	path := writeConfig(t, `
[calibration]
volume_ml = 100
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volume_ml")
}

func TestLoadConfigRejectsBadScanWindow(t *testing.T) {
	path := writeConfig(t, `
[device]
scan_seconds = 0
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
