package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Compile-time check that LocalPublisher implements Publisher.
var _ Publisher = (*LocalPublisher)(nil)

// LocalPublisher stores artifacts under a local directory. It is the
// fallback when no S3 bucket is configured, and doubles as a test
// substitute for object storage. Writes go to a temp file first and are
// renamed into place, so a reader never observes a partial artifact at
// the final key.
type LocalPublisher struct {
	dir     string
	baseURL string
}

// NewLocalPublisher creates a LocalPublisher rooted at dir. The
// directory is created if it does not exist.
func NewLocalPublisher(dir, baseURL string) (*LocalPublisher, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &LocalPublisher{dir: dir, baseURL: baseURL}, nil
}

// Publish copies the artifact at localPath to dir/key and returns its URL.
func (p *LocalPublisher) Publish(ctx context.Context, localPath, key string) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
	default:
	}

	src, err := os.Open(localPath) // #nosec G304 - path is produced by the encoder, not user input
	if err != nil {
		return Result{}, fmt.Errorf("%w: open artifact: %w", ErrPublishFailed, err)
	}
	defer func() { _ = src.Close() }()

	final := filepath.Join(p.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(final), 0o750); err != nil {
		return Result{}, fmt.Errorf("%w: create key directory: %w", ErrPublishFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(final), ".publish_*")
	if err != nil {
		return Result{}, fmt.Errorf("%w: create temp file: %w", ErrPublishFailed, err)
	}
	tmpName := tmp.Name()

	size, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return Result{}, fmt.Errorf("%w: write artifact: %w", ErrPublishFailed, err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return Result{}, fmt.Errorf("%w: finalize artifact: %w", ErrPublishFailed, err)
	}

	url := final
	if p.baseURL != "" {
		url = PublicURL(p.baseURL, "", "", key)
	}
	return Result{URL: url, Key: key, SizeBytes: size}, nil
}
