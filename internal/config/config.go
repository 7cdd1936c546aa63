// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrLocalOverlayMissing is returned when LOCAL_OVERLAY points to a
	// file that does not exist. This is fatal at startup.
	ErrLocalOverlayMissing = errors.New("config: LOCAL_OVERLAY file does not exist")
	// ErrInvalidConcurrency is returned when MAX_CONCURRENT_JOBS is not positive.
	ErrInvalidConcurrency = errors.New("config: MAX_CONCURRENT_JOBS must be positive")
	// ErrInvalidQueueDepth is returned when QUEUE_DEPTH is negative.
	ErrInvalidQueueDepth = errors.New("config: QUEUE_DEPTH must not be negative")
)

// OverlayMode selects where the overlay asset comes from.
type OverlayMode string

const (
	// OverlayNone disables overlay composition; jobs pass through.
	OverlayNone OverlayMode = "none"
	// OverlayBundled uses a local file shipped with the image.
	OverlayBundled OverlayMode = "bundled"
	// OverlayRemote fetches the overlay from a URL once per process.
	OverlayRemote OverlayMode = "remote"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Publishing settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Prefix           string `env:"S3_PREFIX, default=renders/" json:"s3_prefix"`
	PublicBaseURL      string `env:"PUBLIC_BASE_URL" json:"public_base_url,omitempty"`
	Region             string `env:"REGION, default=us-east-1" json:"region"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Overlay settings
	OverlayURL   string `env:"OVERLAY_URL" json:"overlay_url,omitempty"`
	LocalOverlay string `env:"LOCAL_OVERLAY" json:"local_overlay,omitempty"`

	// Processing settings
	WorkDir           string `env:"WORK_DIR, default=/tmp/overlay-render" json:"work_dir"`
	OutputDir         string `env:"OUTPUT_DIR" json:"output_dir,omitempty"`
	MaxConcurrentJobs int    `env:"MAX_CONCURRENT_JOBS, default=4" json:"max_concurrent_jobs"`
	QueueDepth        int    `env:"QUEUE_DEPTH, default=0" json:"queue_depth"`
	EncodeTimeoutSec  int    `env:"ENCODE_TIMEOUT_SEC, default=300" json:"encode_timeout_sec"`
	PublishTimeoutSec int    `env:"PUBLISH_TIMEOUT_SEC, default=120" json:"publish_timeout_sec"`
	FetchTimeoutSec   int    `env:"FETCH_TIMEOUT_SEC, default=60" json:"fetch_timeout_sec"`
	FetchMaxBytes     int64  `env:"FETCH_MAX_BYTES, default=536870912" json:"fetch_max_bytes"`

	// Tool locations
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// Load reads configuration from environment variables using go-envconfig.
// A .env file in the working directory is loaded first if present; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	// godotenv never overwrites variables that are already set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(cfg.WorkDir, "published")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
// A configured bundled overlay that is missing on disk is a startup
// failure: the process must exit non-zero rather than serve requests
// that can never succeed.
func (c *Config) Validate() error {
	if c.MaxConcurrentJobs <= 0 {
		return ErrInvalidConcurrency
	}
	if c.QueueDepth < 0 {
		return ErrInvalidQueueDepth
	}
	if c.LocalOverlay != "" {
		if _, err := os.Stat(c.LocalOverlay); err != nil {
			return fmt.Errorf("%w: %s", ErrLocalOverlayMissing, c.LocalOverlay)
		}
	}
	return nil
}

// OverlayMode returns the overlay source selected by the environment.
// Precedence is explicit: LOCAL_OVERLAY wins over OVERLAY_URL, and with
// neither set the service runs in pass-through mode.
func (c *Config) OverlayMode() OverlayMode {
	switch {
	case c.LocalOverlay != "":
		return OverlayBundled
	case c.OverlayURL != "":
		return OverlayRemote
	default:
		return OverlayNone
	}
}

// S3Enabled returns true if an S3 bucket is configured for publishing.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, S3Bucket: %s, S3Prefix: %s, PublicBaseURL: %s, Region: %s, OverlayMode: %s, WorkDir: %s, MaxConcurrentJobs: %d, QueueDepth: %d, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.S3Bucket,
		c.S3Prefix,
		c.PublicBaseURL,
		c.Region,
		c.OverlayMode(),
		c.WorkDir,
		c.MaxConcurrentJobs,
		c.QueueDepth,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
