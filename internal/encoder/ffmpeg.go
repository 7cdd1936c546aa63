package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrFFprobeExecution is returned when the ffprobe command fails.
var ErrFFprobeExecution = errors.New("encoder: ffprobe execution failed")

// FFmpegEncoder implements Encoder and Prober using the ffmpeg and
// ffprobe CLIs. The argument list is fixed: only file paths chosen by
// the application are interpolated, never request-supplied strings.
type FFmpegEncoder struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
	tailBytes   int
}

// Option is a function that configures an FFmpegEncoder.
type Option func(*FFmpegEncoder)

// WithTimeout sets the wall-clock budget for a single encode.
func WithTimeout(d time.Duration) Option {
	return func(e *FFmpegEncoder) {
		e.timeout = d
	}
}

// WithStderrTailBytes sets how much of the tool's stderr is retained
// for diagnostics.
func WithStderrTailBytes(n int) Option {
	return func(e *FFmpegEncoder) {
		e.tailBytes = n
	}
}

// NewFFmpegEncoder creates a new FFmpegEncoder. Empty paths default to
// "ffmpeg" and "ffprobe" (found via PATH). The default timeout is five
// minutes with a 4 KiB stderr tail.
func NewFFmpegEncoder(ffmpegPath, ffprobePath string, opts ...Option) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	e := &FFmpegEncoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     5 * time.Minute,
		tailBytes:   4096,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode runs ffmpeg to produce outputPath from inputPath. With an
// overlay the streams are composited through a fixed filter graph and
// re-encoded; without one the streams are copied untouched. On any
// failure a partial output file is removed before returning.
func (e *FFmpegEncoder) Encode(ctx context.Context, inputPath, overlayPath, outputPath string) error {
	args := buildEncodeArgs(inputPath, overlayPath, outputPath)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// #nosec G204 - ffmpegPath and args are set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	tail := newTailBuffer(e.tailBytes)
	cmd.Stderr = tail

	err := cmd.Run()
	if err == nil {
		return nil
	}

	// Never leave a partial artifact behind.
	_ = os.Remove(outputPath)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrEncodeTimeout, e.timeout)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("encoder: cancelled: %w", ctx.Err())
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &Error{
		ExitCode:   exitCode,
		StderrTail: tail.String(),
		Err:        err,
	}
}

// buildEncodeArgs returns the fixed ffmpeg argument list. The overlay
// is scaled to the input's dimensions (scale2ref) and composited at the
// top-left corner, ending with the shorter stream.
func buildEncodeArgs(input, overlay, output string) []string {
	if overlay == "" {
		return []string{
			"-y",
			"-i", input,
			"-c", "copy",
			"-movflags", "+faststart",
			output,
		}
	}

	filter := "[1:v]scale2ref[ovl][base];[base][ovl]overlay=0:0:shortest=1[v]"
	return []string{
		"-y",
		"-i", input,
		"-i", overlay,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		output,
	}
}

// Duration returns the duration in seconds of a media file using ffprobe.
func (e *FFmpegEncoder) Duration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("encoder: ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration); err != nil {
		return 0, fmt.Errorf("encoder: parse duration: %w", err)
	}

	return duration, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
