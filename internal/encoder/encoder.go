// Package encoder invokes an external encoding tool to composite an
// overlay onto an input video.
package encoder

import (
	"context"
	"errors"
	"fmt"
)

// ErrEncodeTimeout is returned when the encoder child process exceeds
// its wall-clock budget and is terminated.
var ErrEncodeTimeout = errors.New("encoder: encode timed out")

// Error is a failed encoder invocation. The stderr tail is bounded and
// intended for logs, never for API responses.
type Error struct {
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("encoder: exit code %d: %v\nstderr tail: %s", e.ExitCode, e.Err, e.StderrTail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Encoder produces an output video from an input and an optional
// overlay. An empty overlayPath means plain pass-through (no
// composition). Implementations must write exactly one output file on
// success and leave no output file on any failure path.
type Encoder interface {
	Encode(ctx context.Context, inputPath, overlayPath, outputPath string) error
}

// Prober reads metadata from a media file.
type Prober interface {
	// Duration returns the media duration in seconds.
	Duration(ctx context.Context, path string) (float64, error)
}
