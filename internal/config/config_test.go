package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, 100, cfg.Cache.Capacity)
	require.Equal(t, 30, cfg.Video.FrameInterval)
	require.Equal(t, 2, cfg.Inference.MaxConcurrent)
	require.Equal(t, 120*time.Second, cfg.Inference.Timeout)
	require.Equal(t, "none", cfg.Storage.Backend)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LIVEFEED_CACHE_CAPACITY", "5")
	t.Setenv("LIVEFEED_SERVER_PORT", "9000")
	t.Setenv("LIVEFEED_STORAGE_BACKEND", "file")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 5, cfg.Cache.Capacity)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "file", cfg.Storage.Backend)
}
