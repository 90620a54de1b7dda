package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CACHE_DIR", "")
	t.Setenv("PICTURES_DIR", "")
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, appDirName, filepath.Base(cfg.CacheDir))
	assert.Equal(t, "transfers.db", cfg.DBPath)
	assert.Equal(t, 65536, cfg.ChunkSize)
	assert.Equal(t, 720*time.Hour, cfg.KeepDownloadedFor)
	assert.Equal(t, "127.0.0.1:9527", cfg.Web.BindAddress)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Empty(t, cfg.PlatformBridgeURL)
	assert.Equal(t, "Pictures", filepath.Base(cfg.PicturesDir))
}

func TestLoadConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CACHE_DIR", dir)
	t.Setenv("CHUNK_SIZE", "1024")
	t.Setenv("ALLOWED_SCOPES", "/data/a,/data/b")
	t.Setenv("WEB_BIND_ADDRESS", "0.0.0.0:8080")
	t.Setenv("TELEMETRY_ENABLED", "false")
	t.Setenv("PICTURES_DIR", "/data/pics")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.CacheDir)
	assert.Equal(t, 1024, cfg.ChunkSize)
	assert.Equal(t, []string{"/data/a", "/data/b"}, cfg.AllowedScopes)
	assert.Equal(t, "0.0.0.0:8080", cfg.Web.BindAddress)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "/data/pics", cfg.PicturesDir)
}

func TestDefaultPicturesDir(t *testing.T) {
	dir, err := defaultPicturesDir("android")
	require.NoError(t, err)
	assert.Equal(t, "/storage/emulated/0/Pictures", dir)

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	dir, err = defaultPicturesDir("linux")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Pictures"), dir)
}

func TestLoadConfig_RejectsNonPositiveChunkSize(t *testing.T) {
	t.Setenv("CACHE_DIR", t.TempDir())
	t.Setenv("CHUNK_SIZE", "0")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfig_RejectsInvalidDurations(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"zero cleanup interval", map[string]string{"CLEANUP_INTERVAL": "0s"}, "CLEANUP_INTERVAL must be positive"},
		{"negative cleanup interval", map[string]string{"CLEANUP_INTERVAL": "-1m"}, "CLEANUP_INTERVAL must be positive"},
		{"negative retention", map[string]string{"KEEP_DOWNLOADED_FOR": "-24h"}, "KEEP_DOWNLOADED_FOR must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CACHE_DIR", t.TempDir())

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.in, WebviewLogLevel: tt.in}
			assert.Equal(t, tt.want, cfg.SlogLevel())
			assert.Equal(t, tt.want, cfg.WebviewSlogLevel())
		})
	}
}
