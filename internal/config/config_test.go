package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "S3_BUCKET", "S3_PREFIX", "PUBLIC_BASE_URL", "REGION",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"OVERLAY_URL", "LOCAL_OVERLAY",
		"WORK_DIR", "OUTPUT_DIR", "MAX_CONCURRENT_JOBS", "QUEUE_DEPTH",
		"ENCODE_TIMEOUT_SEC", "FETCH_TIMEOUT_SEC", "FETCH_MAX_BYTES",
		"FFMPEG_PATH", "FFPROBE_PATH", "LOG_FORMAT", "LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "renders/", cfg.S3Prefix)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "/tmp/overlay-render", cfg.WorkDir)
	assert.Equal(t, filepath.Join("/tmp/overlay-render", "published"), cfg.OutputDir)
	assert.Equal(t, 4, cfg.MaxConcurrentJobs)
	assert.Equal(t, 0, cfg.QueueDepth)
	assert.Equal(t, 300, cfg.EncodeTimeoutSec)
	assert.Equal(t, 120, cfg.PublishTimeoutSec)
	assert.Equal(t, int64(536870912), cfg.FetchMaxBytes)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("S3_BUCKET", "media-bucket")
	t.Setenv("S3_PREFIX", "clips/")
	t.Setenv("PUBLIC_BASE_URL", "https://cdn.example.com/")
	t.Setenv("REGION", "eu-west-1")
	t.Setenv("MAX_CONCURRENT_JOBS", "10")
	t.Setenv("QUEUE_DEPTH", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "media-bucket", cfg.S3Bucket)
	assert.Equal(t, "clips/", cfg.S3Prefix)
	assert.Equal(t, "https://cdn.example.com/", cfg.PublicBaseURL)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, 10, cfg.MaxConcurrentJobs)
	assert.Equal(t, 5, cfg.QueueDepth)
	assert.True(t, cfg.S3Enabled())
}

func TestOverlayMode_Precedence(t *testing.T) {
	overlayFile := filepath.Join(t.TempDir(), "overlay.mp4")
	require.NoError(t, os.WriteFile(overlayFile, []byte("x"), 0o600))

	tests := []struct {
		name         string
		localOverlay string
		overlayURL   string
		want         OverlayMode
	}{
		{name: "neither set is none", want: OverlayNone},
		{name: "url only is remote", overlayURL: "https://assets.example.com/hand.mov", want: OverlayRemote},
		{name: "local only is bundled", localOverlay: overlayFile, want: OverlayBundled},
		{name: "local wins over url", localOverlay: overlayFile, overlayURL: "https://assets.example.com/hand.mov", want: OverlayBundled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LocalOverlay: tt.localOverlay, OverlayURL: tt.overlayURL}
			assert.Equal(t, tt.want, cfg.OverlayMode())
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("missing bundled overlay fails", func(t *testing.T) {
		cfg := &Config{
			MaxConcurrentJobs: 4,
			LocalOverlay:      filepath.Join(t.TempDir(), "does-not-exist.mp4"),
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLocalOverlayMissing)
	})

	t.Run("existing bundled overlay passes", func(t *testing.T) {
		overlayFile := filepath.Join(t.TempDir(), "overlay.mp4")
		require.NoError(t, os.WriteFile(overlayFile, []byte("x"), 0o600))

		cfg := &Config{MaxConcurrentJobs: 4, LocalOverlay: overlayFile}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("zero concurrency fails", func(t *testing.T) {
		cfg := &Config{MaxConcurrentJobs: 0}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConcurrency)
	})

	t.Run("negative queue depth fails", func(t *testing.T) {
		cfg := &Config{MaxConcurrentJobs: 1, QueueDepth: -1}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidQueueDepth)
	})
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		S3Bucket:           "bucket",
		AWSAccessKeyID:     "AKIAEXAMPLE",
		AWSSecretAccessKey: "super-secret",
		MaxConcurrentJobs:  4,
	}

	s := cfg.String()
	assert.NotContains(t, s, "AKIAEXAMPLE")
	assert.NotContains(t, s, "super-secret")
	assert.Contains(t, s, "bucket")
}
