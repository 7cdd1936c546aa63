// Package fetch provides bounded HTTP downloads of remote media files.
// Downloads are written to a caller-specified path with a wall-clock
// timeout and a hard size cap, and partial files are removed on every
// failure path.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Static errors for fetch operations.
var (
	// ErrURLRequired is returned when the source URL is empty.
	ErrURLRequired = errors.New("fetch: URL is required")
	// ErrTooLarge is returned when the remote body exceeds the size cap.
	ErrTooLarge = errors.New("fetch: remote file exceeds size limit")
	// ErrBadStatus is returned when the server responds with a non-2xx status.
	ErrBadStatus = errors.New("fetch: unexpected HTTP status")
)

// Fetcher downloads a remote file to a local path.
type Fetcher interface {
	// Fetch downloads url to dst. On any failure dst is removed.
	Fetch(ctx context.Context, url, dst string) error
}

// HTTPFetcher is the HTTP implementation of Fetcher.
type HTTPFetcher struct {
	httpClient *http.Client
	maxBytes   int64
	timeout    time.Duration
}

// Option is a function that configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.httpClient = c
	}
}

// WithMaxBytes sets the download size cap in bytes.
func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) {
		f.maxBytes = n
	}
}

// WithTimeout sets the wall-clock timeout for a single download.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.timeout = d
	}
}

// NewHTTPFetcher creates an HTTPFetcher with a 60s timeout and a
// 512 MiB size cap unless configured otherwise.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		httpClient: &http.Client{},
		maxBytes:   512 << 20,
		timeout:    60 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url to dst, enforcing the configured timeout and size
// cap. The destination file is removed on any failure so callers never
// observe a partial download.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dst string) error {
	if url == "" {
		return ErrURLRequired
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("fetch: build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d from %s", ErrBadStatus, resp.StatusCode, url)
	}
	if resp.ContentLength > f.maxBytes {
		return fmt.Errorf("%w: content length %d > %d", ErrTooLarge, resp.ContentLength, f.maxBytes)
	}

	out, err := os.Create(dst) // #nosec G304 - dst is chosen by the application
	if err != nil {
		return fmt.Errorf("fetch: create %s: %w", dst, err)
	}

	// Read one byte past the cap so a body of exactly maxBytes passes
	// while anything larger is detected without draining the stream.
	n, err := io.Copy(out, io.LimitReader(resp.Body, f.maxBytes+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		if ctx.Err() != nil {
			return fmt.Errorf("fetch: %w", ctx.Err())
		}
		return fmt.Errorf("fetch: write %s: %w", dst, err)
	}
	if n > f.maxBytes {
		_ = os.Remove(dst)
		return fmt.Errorf("%w: body exceeds %d bytes", ErrTooLarge, f.maxBytes)
	}

	return nil
}
