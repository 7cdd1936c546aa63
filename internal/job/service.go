package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/renderbox/overlay-api/internal/encoder"
	"github.com/renderbox/overlay-api/internal/fetch"
	"github.com/renderbox/overlay-api/internal/overlay"
	"github.com/renderbox/overlay-api/internal/publish"
)

// Static errors for render orchestration.
var (
	// ErrCapacityExceeded is returned when the in-flight limit and the
	// admission queue are both full. No job record is created.
	ErrCapacityExceeded = errors.New("job: capacity exceeded")
	// ErrInputUnavailable is returned when the input media reference
	// cannot be downloaded or does not exist locally.
	ErrInputUnavailable = errors.New("job: input media unavailable")
)

// Pipeline stage names used in logs and failure records.
const (
	StageResolving = "resolving-asset"
	StageEncoding  = "encoding"
	StageUploading = "uploading"
)

// probeTimeout bounds the metadata probe after a successful encode. The
// probe is best-effort; a slow probe must not hold a worker slot.
const probeTimeout = 30 * time.Second

// outputNameRe restricts the optional output naming hint to characters
// that are safe in object keys and on the encoder command line. This is
// the only request-supplied string that reaches a filesystem path, and
// it never reaches the subprocess argument list unsanitized.
var outputNameRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// RenderInput contains the parameters for one render job.
type RenderInput struct {
	// Input is the input media reference: an http(s) URL to download,
	// or a local path that must already exist.
	Input string
	// Overlay selects the overlay: "" or "default" for the configured
	// source, "none" to disable, or a registered overlay name.
	Overlay string
	// OutputName is an optional naming hint appended to the object key.
	OutputName string
}

// RenderService orchestrates render jobs: resolve the overlay asset,
// fetch the input, run the encoder, publish the artifact. Stages run
// strictly sequentially within a job; jobs are independent of each
// other. Admission is bounded: at most maxConcurrent jobs run at once
// and at most queueDepth wait; anything beyond that is rejected before
// a job record is created.
type RenderService struct {
	repo      Repository
	resolver  *overlay.Resolver
	encoder   encoder.Encoder
	prober    encoder.Prober
	publisher publish.Publisher
	fetcher   fetch.Fetcher
	logger    *slog.Logger

	workRoot       string
	keyPrefix      string
	publishTimeout time.Duration

	// tickets bounds total in-flight jobs (running + queued); sem
	// bounds running jobs. Both are released on terminal states only.
	tickets chan struct{}
	sem     chan struct{}
}

// Option is a function that configures a RenderService.
type Option func(*options)

type options struct {
	maxConcurrent  int
	queueDepth     int
	workRoot       string
	keyPrefix      string
	publishTimeout time.Duration
}

// WithMaxConcurrent sets the in-flight job limit.
func WithMaxConcurrent(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithQueueDepth sets how many admitted jobs may wait for a worker
// slot. Zero means requests beyond the limit are rejected immediately.
func WithQueueDepth(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.queueDepth = n
		}
	}
}

// WithWorkRoot sets the root directory for per-job working directories.
func WithWorkRoot(dir string) Option {
	return func(o *options) {
		o.workRoot = dir
	}
}

// WithKeyPrefix sets the object key prefix for published artifacts.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

// WithPublishTimeout sets the wall-clock budget for publishing one
// artifact. Jobs run on a detached context, so without this bound a
// stalled upload would hold its worker slot forever.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.publishTimeout = d
		}
	}
}

// NewRenderService creates a new RenderService.
func NewRenderService(
	repo Repository,
	resolver *overlay.Resolver,
	enc encoder.Encoder,
	prober encoder.Prober,
	publisher publish.Publisher,
	fetcher fetch.Fetcher,
	logger *slog.Logger,
	opts ...Option,
) *RenderService {
	if logger == nil {
		logger = slog.Default()
	}

	o := &options{
		maxConcurrent:  4,
		queueDepth:     0,
		workRoot:       filepath.Join(os.TempDir(), "overlay-render"),
		keyPrefix:      "renders/",
		publishTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}

	return &RenderService{
		repo:           repo,
		resolver:       resolver,
		encoder:        enc,
		prober:         prober,
		publisher:      publisher,
		fetcher:        fetcher,
		logger:         logger,
		workRoot:       o.workRoot,
		keyPrefix:      o.keyPrefix,
		publishTimeout: o.publishTimeout,
		tickets:        make(chan struct{}, o.maxConcurrent+o.queueDepth),
		sem:            make(chan struct{}, o.maxConcurrent),
	}
}

// GetJob retrieves a job by ID.
func (s *RenderService) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.FindByID(ctx, jobID)
}

// ListJobs returns all known jobs.
func (s *RenderService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Render runs a job to completion and returns its final record. The
// returned error is the stage error for classification at the HTTP
// boundary; the job record carries the same information for polling.
func (s *RenderService) Render(ctx context.Context, input RenderInput) (*Job, error) {
	release, err := s.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	jb, err := s.createJob(ctx, input)
	if err != nil {
		return nil, err
	}

	processErr := s.process(ctx, jb, input)
	final, findErr := s.repo.FindByID(ctx, jb.ID)
	if findErr != nil {
		return nil, findErr
	}
	return final, processErr
}

// Submit admits a job, creates its record, and processes it in the
// background with a detached context: a client disconnect never cancels
// an admitted job. Capacity rejections happen here, synchronously,
// before any record exists.
func (s *RenderService) Submit(ctx context.Context, input RenderInput) (*Job, error) {
	release, err := s.admit(ctx)
	if err != nil {
		return nil, err
	}

	jb, err := s.createJob(ctx, input)
	if err != nil {
		release()
		return nil, err
	}

	go func(ctx context.Context) {
		defer release()
		if processErr := s.process(ctx, jb, input); processErr != nil {
			s.logger.Error("background render failed",
				slog.String("job_id", jb.ID),
				slog.String("error", processErr.Error()),
			)
		}
	}(context.WithoutCancel(ctx))

	return jb.Clone(), nil
}

// admit reserves an admission ticket, deciding immediately: tickets
// bound running plus queued jobs, so the (limit+depth+1)-th concurrent
// request is rejected, never queued unboundedly. The returned release
// must be called exactly once when the job reaches a terminal state.
func (s *RenderService) admit(_ context.Context) (func(), error) {
	select {
	case s.tickets <- struct{}{}:
	default:
		return nil, fmt.Errorf("%w: %d jobs in flight", ErrCapacityExceeded, cap(s.tickets))
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-s.tickets })
	}, nil
}

// createJob builds and persists the initial job record.
func (s *RenderService) createJob(ctx context.Context, input RenderInput) (*Job, error) {
	jb := New()
	jb.Input = input.Input
	jb.Overlay = input.Overlay
	jb.OutputName = sanitizeOutputName(input.OutputName)
	jb.WorkDir = filepath.Join(s.workRoot, jb.ID)

	s.logger.Info("render job created",
		slog.String("job_id", jb.ID),
		slog.String("input", input.Input),
		slog.String("overlay", input.Overlay),
	)

	if err := s.repo.Save(ctx, jb); err != nil {
		return nil, err
	}
	return jb, nil
}

// process waits for a worker slot, then runs the stage pipeline. An
// admitted job stays PENDING while queued. The job working directory is
// released on every exit path, whichever stage fails.
func (s *RenderService) process(ctx context.Context, jb *Job, input RenderInput) error {
	// sem bounds running jobs; the ticket bound keeps this wait set finite.
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return s.fail(ctx, jb, StageResolving, ctx.Err())
	}
	defer func() { <-s.sem }()

	if err := os.MkdirAll(jb.WorkDir, 0o750); err != nil {
		return s.fail(ctx, jb, StageResolving, fmt.Errorf("create work dir: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(jb.WorkDir); err != nil {
			s.logger.Warn("failed to remove job work dir",
				slog.String("job_id", jb.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	// Stage: resolve overlay asset and input media.
	if err := s.transition(ctx, jb, StatusResolving); err != nil {
		return err
	}

	asset, err := s.resolver.Resolve(ctx, input.Overlay)
	if err != nil {
		return s.fail(ctx, jb, StageResolving, err)
	}

	inputPath, err := s.materializeInput(ctx, jb, input.Input)
	if err != nil {
		return s.fail(ctx, jb, StageResolving, err)
	}

	// Stage: encode.
	if err := s.transition(ctx, jb, StatusEncoding); err != nil {
		return err
	}

	outputPath := filepath.Join(jb.WorkDir, jb.ID+".mp4")
	if err := s.encoder.Encode(ctx, inputPath, asset.Path, outputPath); err != nil {
		return s.fail(ctx, jb, StageEncoding, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return s.fail(ctx, jb, StageEncoding, fmt.Errorf("stat output: %w", err))
	}

	// Duration is metadata only; a probe failure does not fail the job.
	var durationSec float64
	if s.prober != nil {
		probeCtx, cancelProbe := context.WithTimeout(ctx, probeTimeout)
		durationSec, err = s.prober.Duration(probeCtx, outputPath)
		cancelProbe()
		if err != nil {
			s.logger.Warn("probe duration failed",
				slog.String("job_id", jb.ID),
				slog.String("error", err.Error()),
			)
			durationSec = 0
		}
	}

	// Stage: publish.
	if err := s.transition(ctx, jb, StatusUploading); err != nil {
		return err
	}

	// Jobs run on a detached context, so the publish call carries its
	// own deadline; without it a stalled upload would never release the
	// worker slot.
	key := s.objectKey(jb)
	pubCtx, cancelPublish := context.WithTimeout(ctx, s.publishTimeout)
	pub, err := s.publisher.Publish(pubCtx, outputPath, key)
	cancelPublish()
	if err != nil {
		if !errors.Is(err, publish.ErrPublishFailed) {
			err = fmt.Errorf("%w: %w", publish.ErrPublishFailed, err)
		}
		return s.fail(ctx, jb, StageUploading, err)
	}
	if pub.SizeBytes == 0 {
		pub.SizeBytes = info.Size()
	}

	jb.SetResult(pub.URL, pub.SizeBytes, durationSec, !asset.Absent())
	if err := jb.TransitionTo(StatusDone); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, jb); err != nil {
		return err
	}

	s.logger.Info("render job completed",
		slog.String("job_id", jb.ID),
		slog.String("url", pub.URL),
		slog.Int64("size_bytes", pub.SizeBytes),
		slog.Float64("duration_sec", durationSec),
		slog.Bool("overlay_applied", !asset.Absent()),
		slog.Duration("elapsed", time.Since(jb.CreatedAt)),
	)
	return nil
}

// materializeInput makes the input media locally addressable: URLs are
// downloaded into the job work dir, local paths are used in place (and
// never removed by job cleanup).
func (s *RenderService) materializeInput(ctx context.Context, jb *Job, ref string) (string, error) {
	if isHTTPURL(ref) {
		dst := filepath.Join(jb.WorkDir, "input"+inputExt(ref))
		if err := s.fetcher.Fetch(ctx, ref, dst); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInputUnavailable, err)
		}
		return dst, nil
	}

	if _, err := os.Stat(ref); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInputUnavailable, ref, err)
	}
	return ref, nil
}

// transition advances the job state and persists it.
func (s *RenderService) transition(ctx context.Context, jb *Job, status Status) error {
	if err := jb.TransitionTo(status); err != nil {
		return err
	}
	return s.repo.Save(ctx, jb)
}

// fail marks the job failed at a stage, persists it, and logs with the
// job identifier and failing stage. No failure is silently swallowed.
func (s *RenderService) fail(ctx context.Context, jb *Job, stage string, cause error) error {
	_ = jb.Fail(stage, cause.Error())
	if err := s.repo.Save(ctx, jb); err != nil {
		s.logger.Error("failed to persist job failure",
			slog.String("job_id", jb.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Error("render job failed",
		slog.String("job_id", jb.ID),
		slog.String("stage", stage),
		slog.String("error", cause.Error()),
	)
	return cause
}

// objectKey builds the deterministic artifact key: prefix + job id
// (+ optional sanitized naming hint) + ".mp4". The job id keeps keys
// of concurrent jobs disjoint.
func (s *RenderService) objectKey(jb *Job) string {
	jobPart := jb.ID
	if jb.OutputName != "" {
		jobPart = jb.ID + "-" + jb.OutputName
	}
	return publish.ObjectKey(s.keyPrefix, jobPart, ".mp4")
}

// sanitizeOutputName strips everything but [a-zA-Z0-9_-] from the
// request-supplied naming hint.
func sanitizeOutputName(name string) string {
	return outputNameRe.ReplaceAllString(name, "")
}

// isHTTPURL reports whether ref is an absolute http(s) URL.
func isHTTPURL(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// inputExt extracts a file extension from the input URL, defaulting to
// .mp4 when the URL has none.
func inputExt(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if ext := filepath.Ext(filepath.Base(trimmed)); ext != "" {
		return ext
	}
	return ".mp4"
}
