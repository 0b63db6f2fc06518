package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsZeroFields(t *testing.T) {
	cfg := Default()
	cfg.MTU = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ICEServers = nil
	assert.Error(t, cfg.Validate())
}

func writeEnvFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.env")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadOverridesDefaultsFromEnvFile(t *testing.T) {
	path := writeEnvFile(t, `
# a comment line, and a blank line below

mdns=false
frame_interval_ms=20
mtu=1000
reorder_window=64
initial_bandwidth_bps=500000
ice_servers=stun:a.example.com:3478,stun:b.example.com:3478
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.MDNS)
	assert.Equal(t, 20_000_000, int(cfg.FrameInterval.Nanoseconds()))
	assert.Equal(t, 1000, cfg.MTU)
	assert.Equal(t, 64, cfg.ReorderWindow)
	assert.Equal(t, 500000.0, cfg.InitialBandwidth)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:a.example.com:3478", "stun:b.example.com:3478"}, cfg.ICEServers[0].URLs)
}

func TestLoadKeepsDefaultsForUnsetKeys(t *testing.T) {
	path := writeEnvFile(t, "mtu=1000\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.MTU)
	assert.Equal(t, Default().FrameInterval, cfg.FrameInterval)
	assert.Equal(t, Default().MDNS, cfg.MDNS)
}

func TestLoadPropagatesMalformedValueError(t *testing.T) {
	path := writeEnvFile(t, "mtu=not-a-number\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.env"))
	assert.Error(t, err)
}
