package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/ferry/internal/config"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	configDir := filepath.Join(dir, "ferry")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Transfer.BufferSize)
	assert.Nil(t, cfg.Connect.Mode)
	assert.Nil(t, cfg.Daemon.Listen)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[transfer]
buffer_size = "256K"
depth = 8
strategy = "window"
compression = "zstd"
bwlimit = "100MB"
backend = "pread"

[connect]
mode = "poll"
interval = "250ms"
attempts = 20
handshake_timeout = "3s"
traffic_class = 8

[daemon]
listen = ":9000"
root = "/srv/ferry"
port_range = "50000-51000"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Transfer.BufferSize)
	assert.Equal(t, "256K", *cfg.Transfer.BufferSize)
	require.NotNil(t, cfg.Transfer.Depth)
	assert.Equal(t, 8, *cfg.Transfer.Depth)
	require.NotNil(t, cfg.Transfer.Strategy)
	assert.Equal(t, "window", *cfg.Transfer.Strategy)
	require.NotNil(t, cfg.Transfer.Compression)
	assert.Equal(t, "zstd", *cfg.Transfer.Compression)
	require.NotNil(t, cfg.Transfer.BWLimit)
	assert.Equal(t, "100MB", *cfg.Transfer.BWLimit)
	require.NotNil(t, cfg.Transfer.Backend)
	assert.Equal(t, "pread", *cfg.Transfer.Backend)

	require.NotNil(t, cfg.Connect.Mode)
	assert.Equal(t, "poll", *cfg.Connect.Mode)
	require.NotNil(t, cfg.Connect.Interval)
	assert.Equal(t, 250*time.Millisecond, cfg.Connect.Interval.Duration)
	require.NotNil(t, cfg.Connect.Attempts)
	assert.Equal(t, 20, *cfg.Connect.Attempts)
	require.NotNil(t, cfg.Connect.HandshakeTimeout)
	assert.Equal(t, 3*time.Second, cfg.Connect.HandshakeTimeout.Duration)
	require.NotNil(t, cfg.Connect.TrafficClass)
	assert.Equal(t, 8, *cfg.Connect.TrafficClass)

	require.NotNil(t, cfg.Daemon.Listen)
	assert.Equal(t, ":9000", *cfg.Daemon.Listen)
	require.NotNil(t, cfg.Daemon.Root)
	assert.Equal(t, "/srv/ferry", *cfg.Daemon.Root)
	require.NotNil(t, cfg.Daemon.PortRange)
	assert.Equal(t, "50000-51000", *cfg.Daemon.PortRange)

	// Unset fields should remain nil.
	assert.Nil(t, cfg.Connect.Timeout)
}

func TestLoad_PartialConfig(t *testing.T) {
	writeConfig(t, `
[daemon]
root = "/data"
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	// Transfer section entirely absent.
	assert.Nil(t, cfg.Transfer.Depth)
	assert.Nil(t, cfg.Transfer.Strategy)

	require.NotNil(t, cfg.Daemon.Root)
	assert.Equal(t, "/data", *cfg.Daemon.Root)
}

func TestLoad_InvalidTOML(t *testing.T) {
	writeConfig(t, "invalid [[[")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	writeConfig(t, "[connect]\ninterval = \"often\"\n")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/ferry/config.toml", config.Path())
}
