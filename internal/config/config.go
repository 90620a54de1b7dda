package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	appDirName         = "echo-trails"
	androidPicturesDir = "/storage/emulated/0/Pictures"
)

// Config struct for environment variables.
type Config struct {
	CacheDir          string        `envconfig:"CACHE_DIR"`
	DBPath            string        `envconfig:"DB_PATH" default:"transfers.db"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	WebviewLogLevel   string        `envconfig:"WEBVIEW_LOG_LEVEL" default:"WARN"`
	ChunkSize         int           `envconfig:"CHUNK_SIZE" default:"65536"`
	KeepDownloadedFor time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"720h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	NotifyWebhookURL  string        `envconfig:"NOTIFY_WEBHOOK_URL"`
	AllowedScopes     []string      `envconfig:"ALLOWED_SCOPES"`
	PlatformBridgeURL string        `envconfig:"PLATFORM_BRIDGE_URL"`
	DigestCacheSize   int           `envconfig:"DIGEST_CACHE_SIZE" default:"256"`
	PicturesDir       string        `envconfig:"PICTURES_DIR"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
		ServiceName  string `split_words:"true" default:"echo-trails-native"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:9527"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.CacheDir == "" {
		dir, err := defaultCacheDir()
		if err != nil {
			return nil, err
		}

		cfg.CacheDir = dir
	}

	if cfg.PicturesDir == "" {
		dir, err := defaultPicturesDir(runtime.GOOS)
		if err != nil {
			return nil, err
		}

		cfg.PicturesDir = dir
	}

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}

	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive, got %s", cfg.CleanupInterval)
	}

	if cfg.KeepDownloadedFor < 0 {
		return nil, fmt.Errorf("KEEP_DOWNLOADED_FOR must not be negative, got %s", cfg.KeepDownloadedFor)
	}

	return &cfg, nil
}

func defaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user cache dir: %w", err)
	}

	return filepath.Join(base, appDirName), nil
}

func defaultPicturesDir(goos string) (string, error) {
	if goos == "android" {
		return androidPicturesDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home dir: %w", err)
	}

	return filepath.Join(home, "Pictures"), nil
}

func (c *Config) SlogLevel() slog.Level {
	return parseLevel(c.LogLevel)
}

func (c *Config) WebviewSlogLevel() slog.Level {
	return parseLevel(c.WebviewLogLevel)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
