// Package bootstrap provides dependency initialization for the render API.
package bootstrap

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/renderbox/overlay-api/internal/config"
	"github.com/renderbox/overlay-api/internal/encoder"
	"github.com/renderbox/overlay-api/internal/fetch"
	"github.com/renderbox/overlay-api/internal/job"
	"github.com/renderbox/overlay-api/internal/overlay"
	"github.com/renderbox/overlay-api/internal/publish"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	RenderService *job.RenderService
}

// NewDependencies creates and initializes all dependencies for the
// application. A configured bundled overlay is verified here, so a
// broken deployment fails at startup rather than on the first request.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	fetcher := fetch.NewHTTPFetcher(
		fetch.WithTimeout(time.Duration(cfg.FetchTimeoutSec)*time.Second),
		fetch.WithMaxBytes(cfg.FetchMaxBytes),
	)

	resolver := overlay.NewResolver(
		cfg.LocalOverlay,
		cfg.OverlayURL,
		filepath.Join(cfg.WorkDir, "overlays"),
		fetcher,
	)
	if err := resolver.Verify(); err != nil {
		return nil, fmt.Errorf("verify overlay: %w", err)
	}
	logger.Info("overlay source configured",
		slog.String("mode", string(cfg.OverlayMode())),
	)

	enc := encoder.NewFFmpegEncoder(cfg.FFmpegPath, cfg.FFprobePath,
		encoder.WithTimeout(time.Duration(cfg.EncodeTimeoutSec)*time.Second),
	)

	publisher, err := initPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	repo := job.NewMemoryRepository()

	svc := job.NewRenderService(
		repo,
		resolver,
		enc,
		enc,
		publisher,
		fetcher,
		logger,
		job.WithMaxConcurrent(cfg.MaxConcurrentJobs),
		job.WithQueueDepth(cfg.QueueDepth),
		job.WithWorkRoot(cfg.WorkDir),
		job.WithKeyPrefix(cfg.S3Prefix),
		job.WithPublishTimeout(time.Duration(cfg.PublishTimeoutSec)*time.Second),
	)

	return &Dependencies{
		RenderService: svc,
	}, nil
}

// initPublisher creates the appropriate publishing backend based on
// configuration.
func initPublisher(cfg *config.Config, logger *slog.Logger) (publish.Publisher, error) {
	if cfg.S3Enabled() {
		s3Pub, err := publish.NewS3Publisher(publish.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.Region,
			PublicBaseURL:   cfg.PublicBaseURL,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 publisher: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.Region),
			slog.String("prefix", cfg.S3Prefix),
		)
		return s3Pub, nil
	}

	localPub, err := publish.NewLocalPublisher(cfg.OutputDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create local publisher: %w", err)
	}
	logger.Info("local publishing configured",
		slog.String("output_dir", cfg.OutputDir),
	)
	return localPub, nil
}
