// Package overlay resolves the overlay asset composited onto rendered
// videos. An overlay comes from one of three sources: a bundled local
// file, a remote URL fetched once and cached for the process lifetime,
// or nothing at all (pass-through rendering).
package overlay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/renderbox/overlay-api/internal/fetch"
)

// Static errors for overlay resolution.
var (
	// ErrAssetUnavailable is returned when the overlay source cannot be
	// resolved to a local file.
	ErrAssetUnavailable = errors.New("overlay: asset unavailable")
	// ErrUnknownOverlay is returned when a request names an overlay that
	// is not registered.
	ErrUnknownOverlay = errors.New("overlay: unknown overlay name")
)

// Provenance records where a resolved asset came from.
type Provenance string

const (
	// ProvenanceNone means no overlay is applied.
	ProvenanceNone Provenance = "none"
	// ProvenanceBundled means the asset is a local file shipped with the image.
	ProvenanceBundled Provenance = "bundled"
	// ProvenanceFetched means the asset was downloaded and cached.
	ProvenanceFetched Provenance = "fetched"
)

// Selection values accepted from requests, in addition to registered names.
const (
	// SelectionDefault uses the source configured by the environment.
	SelectionDefault = "default"
	// SelectionNone disables the overlay for this request.
	SelectionNone = "none"
)

// Asset is a resolved, locally addressable overlay file. Immutable
// after resolution.
type Asset struct {
	// Path is the local file path, empty when Provenance is none.
	Path string
	// Provenance records how the asset was obtained.
	Provenance Provenance
}

// Absent returns true when no overlay should be composited.
func (a Asset) Absent() bool {
	return a.Provenance == ProvenanceNone
}

// Resolver locates overlay assets. The default source follows a fixed
// precedence: a bundled path wins over a remote URL, and with neither
// configured the default is no overlay. The remote asset is fetched at
// most once per process; a failed fetch is retried on the next request,
// never in the background.
type Resolver struct {
	localPath string
	remoteURL string
	cacheDir  string
	fetcher   fetch.Fetcher

	mu      sync.Mutex
	named   map[string]string
	fetched bool
	cached  string
}

// NewResolver creates a Resolver. cacheDir is where a remote overlay is
// cached; fetcher may be nil when no remote URL is configured. A bundled
// overlay is registered under its file stem, so a request can select it
// by name (e.g. "hand_overlay" for /assets/hand_overlay.mp4); "default"
// and "" resolve through the configured-source precedence instead.
func NewResolver(localPath, remoteURL, cacheDir string, fetcher fetch.Fetcher) *Resolver {
	r := &Resolver{
		localPath: localPath,
		remoteURL: remoteURL,
		cacheDir:  cacheDir,
		fetcher:   fetcher,
		named:     make(map[string]string),
	}
	if localPath != "" {
		base := filepath.Base(localPath)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		r.named[stem] = localPath
	}
	return r
}

// Register adds a named overlay backed by a local file.
func (r *Resolver) Register(name, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.named[name] = path
}

// Names returns the registered overlay names.
func (r *Resolver) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.named))
	for name := range r.named {
		names = append(names, name)
	}
	return names
}

// Verify checks the bundled overlay at startup. A configured bundled
// path that is missing is fatal: the caller must refuse to start.
func (r *Resolver) Verify() error {
	if r.localPath == "" {
		return nil
	}
	if _, err := os.Stat(r.localPath); err != nil {
		return fmt.Errorf("%w: bundled overlay %s: %v", ErrAssetUnavailable, r.localPath, err)
	}
	return nil
}

// Resolve returns the overlay asset for a request selection. selection
// is "" or "default" for the configured source, "none" to disable the
// overlay, or a registered overlay name.
func (r *Resolver) Resolve(ctx context.Context, selection string) (Asset, error) {
	switch selection {
	case SelectionNone:
		return Asset{Provenance: ProvenanceNone}, nil
	case "", SelectionDefault:
		return r.resolveDefault(ctx)
	default:
		r.mu.Lock()
		path, ok := r.named[selection]
		r.mu.Unlock()
		if !ok {
			return Asset{}, fmt.Errorf("%w: %q", ErrUnknownOverlay, selection)
		}
		if _, err := os.Stat(path); err != nil {
			return Asset{}, fmt.Errorf("%w: %s: %v", ErrAssetUnavailable, path, err)
		}
		return Asset{Path: path, Provenance: ProvenanceBundled}, nil
	}
}

func (r *Resolver) resolveDefault(ctx context.Context) (Asset, error) {
	switch {
	case r.localPath != "":
		if _, err := os.Stat(r.localPath); err != nil {
			return Asset{}, fmt.Errorf("%w: %s: %v", ErrAssetUnavailable, r.localPath, err)
		}
		return Asset{Path: r.localPath, Provenance: ProvenanceBundled}, nil
	case r.remoteURL != "":
		path, err := r.fetchRemote(ctx)
		if err != nil {
			return Asset{}, err
		}
		return Asset{Path: path, Provenance: ProvenanceFetched}, nil
	default:
		return Asset{Provenance: ProvenanceNone}, nil
	}
}

// fetchRemote downloads the remote overlay on first use. The lock is
// held across the download so concurrent first requests trigger a
// single fetch; once cached, the file is shared read-only by all jobs.
func (r *Resolver) fetchRemote(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fetched {
		return r.cached, nil
	}

	if err := os.MkdirAll(r.cacheDir, 0o750); err != nil {
		return "", fmt.Errorf("%w: create cache dir: %v", ErrAssetUnavailable, err)
	}

	dst := filepath.Join(r.cacheDir, "overlay"+remoteExt(r.remoteURL))
	if err := r.fetcher.Fetch(ctx, r.remoteURL, dst); err != nil {
		return "", fmt.Errorf("%w: fetch %s: %v", ErrAssetUnavailable, r.remoteURL, err)
	}

	r.fetched = true
	r.cached = dst
	return dst, nil
}

// remoteExt extracts a file extension from the overlay URL, defaulting
// to .mp4 when the URL has none.
func remoteExt(url string) string {
	trimmed := url
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if ext := filepath.Ext(filepath.Base(trimmed)); ext != "" {
		return ext
	}
	return ".mp4"
}
