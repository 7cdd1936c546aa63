package overlay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderbox/overlay-api/internal/fetch"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("overlay"), 0o600))
	return path
}

func TestResolve_NoneMode(t *testing.T) {
	r := NewResolver("", "", t.TempDir(), nil)

	asset, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, asset.Absent())
	assert.Empty(t, asset.Path)
}

func TestResolve_SelectionNoneOverridesBundled(t *testing.T) {
	local := writeFile(t, t.TempDir(), "hand_overlay.mp4")
	r := NewResolver(local, "", t.TempDir(), nil)

	asset, err := r.Resolve(context.Background(), SelectionNone)
	require.NoError(t, err)
	assert.True(t, asset.Absent())
}

func TestResolve_Bundled(t *testing.T) {
	local := writeFile(t, t.TempDir(), "hand_overlay.mp4")
	r := NewResolver(local, "", t.TempDir(), nil)

	for _, selection := range []string{"", SelectionDefault, "hand_overlay"} {
		asset, err := r.Resolve(context.Background(), selection)
		require.NoError(t, err, "selection %q", selection)
		assert.Equal(t, local, asset.Path)
		assert.Equal(t, ProvenanceBundled, asset.Provenance)
	}
}

func TestResolve_UnknownName(t *testing.T) {
	r := NewResolver("", "", t.TempDir(), nil)

	_, err := r.Resolve(context.Background(), "minecraft_parkour")
	assert.ErrorIs(t, err, ErrUnknownOverlay)
}

func TestVerify(t *testing.T) {
	t.Run("bundled present", func(t *testing.T) {
		local := writeFile(t, t.TempDir(), "hand_overlay.mp4")
		r := NewResolver(local, "", t.TempDir(), nil)
		assert.NoError(t, r.Verify())
	})

	t.Run("bundled missing", func(t *testing.T) {
		r := NewResolver(filepath.Join(t.TempDir(), "gone.mp4"), "", t.TempDir(), nil)
		assert.ErrorIs(t, r.Verify(), ErrAssetUnavailable)
	})

	t.Run("no bundled overlay configured", func(t *testing.T) {
		r := NewResolver("", "https://assets.example.com/a.mp4", t.TempDir(), nil)
		assert.NoError(t, r.Verify())
	})
}

func TestResolve_RemoteFetchedOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("remote overlay"))
	}))
	defer srv.Close()

	r := NewResolver("", srv.URL+"/hand.mov", t.TempDir(), fetch.NewHTTPFetcher())

	first, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ProvenanceFetched, first.Provenance)
	assert.Equal(t, ".mov", filepath.Ext(first.Path))

	second, err := r.Resolve(context.Background(), SelectionDefault)
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path)

	assert.Equal(t, int32(1), hits.Load(), "second resolve must be a cache hit")
}

func TestResolve_RemoteFailureRetriesNextRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("remote overlay"))
	}))
	defer srv.Close()

	r := NewResolver("", srv.URL+"/overlay.mp4", t.TempDir(), fetch.NewHTTPFetcher())

	_, err := r.Resolve(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAssetUnavailable)

	asset, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ProvenanceFetched, asset.Provenance)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRegister(t *testing.T) {
	r := NewResolver("", "", t.TempDir(), nil)
	extra := writeFile(t, t.TempDir(), "subway.mp4")
	r.Register("subway_surfers", extra)

	asset, err := r.Resolve(context.Background(), "subway_surfers")
	require.NoError(t, err)
	assert.Equal(t, extra, asset.Path)
	assert.Contains(t, r.Names(), "subway_surfers")
}

func TestRemoteExt(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://a.example.com/hand.mov", ".mov"},
		{"https://a.example.com/hand.webm?sig=abc", ".webm"},
		{"https://a.example.com/hand", ".mp4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, remoteExt(tt.url), tt.url)
	}
}
