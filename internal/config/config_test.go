package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.True(t, cfg.AllowUpdateCreate)
	assert.True(t, cfg.KeepHistory)
	assert.Equal(t, 4, cfg.Worker.MaxConcurrent)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval.Std())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fhird.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr = ":9090"
log_level = "debug"
allow_update_create = false

[worker]
max_concurrent = 8
poll_interval = "250ms"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.AllowUpdateCreate)
	assert.Equal(t, 8, cfg.Worker.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval.Std())
	// Untouched keys keep their defaults.
	assert.Equal(t, time.Minute, cfg.Worker.HeartbeatTimeout.Std())
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fhird.toml")
	require.NoError(t, os.WriteFile(path, []byte(`http_addr = ":9090"`), 0o644))

	t.Setenv("FHIRD_HTTP_ADDR", ":7070")
	t.Setenv("FHIRD_WORKER_MAX_CONCURRENT", "16")
	t.Setenv("FHIRD_WORKER_POLL_INTERVAL", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.Equal(t, 16, cfg.Worker.MaxConcurrent)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval.Std())
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("FHIRD_WORKER_MAX_CONCURRENT", "many")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
