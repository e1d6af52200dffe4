package assets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	Loader
	calls atomic.Int32
	delay time.Duration
}

func (l *countingLoader) Load(ctx context.Context, name string) (Asset, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	return l.Loader.Load(ctx, name)
}

func testFS() fstest.MapFS {
	fsys := fstest.MapFS{}
	for _, name := range Manifest {
		fsys[name] = &fstest.MapFile{Data: []byte("content of " + name)}
	}
	fsys["secret.txt"] = &fstest.MapFile{Data: []byte("nope")}
	return fsys
}

func TestCacheLoadsOnceUnderConcurrency(t *testing.T) {
	loader := &countingLoader{Loader: NewFSLoader(testFS()), delay: 20 * time.Millisecond}
	cache := NewCache(loader, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			asset, err := cache.Get(context.Background(), "app.js")
			assert.NoError(t, err)
			assert.Equal(t, "content of app.js", string(asset.Body))
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, loader.calls.Load())

	_, err := cache.Get(context.Background(), "app.js")
	require.NoError(t, err)
	require.EqualValues(t, 1, loader.calls.Load(), "second read should be a cache hit")
}

func TestCacheRejectsPathsOutsideManifest(t *testing.T) {
	loader := &countingLoader{Loader: NewFSLoader(testFS())}
	cache := NewCache(loader, 0)

	_, err := cache.Get(context.Background(), "secret.txt")
	require.True(t, errors.Is(err, ErrNotInManifest))
	require.EqualValues(t, 0, loader.calls.Load())
}

func TestCacheExpiresWithTTL(t *testing.T) {
	loader := &countingLoader{Loader: NewFSLoader(testFS())}
	cache := NewCache(loader, time.Minute)
	now := time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	_, err := cache.Get(context.Background(), "style.css")
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, _ = cache.Get(context.Background(), "style.css")
	require.EqualValues(t, 1, loader.calls.Load())

	now = now.Add(2 * time.Minute)
	_, _ = cache.Get(context.Background(), "style.css")
	require.EqualValues(t, 2, loader.calls.Load())
}

func TestEmbeddedManifestIsComplete(t *testing.T) {
	cache := NewCache(NewEmbedLoader(), 0)
	require.NoError(t, cache.Preload(context.Background()))

	asset, err := cache.Get(context.Background(), "index.html")
	require.NoError(t, err)
	require.Contains(t, asset.ContentType, "text/html")
	require.NotEmpty(t, asset.ETag)
}

func TestServeHTTP(t *testing.T) {
	cache := NewCache(NewFSLoader(testFS()), 0)

	rec := httptest.NewRecorder()
	cache.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "content of index.html", rec.Body.String())
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	cache.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotModified, rec.Code)

	rec = httptest.NewRecorder()
	cache.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/secret.txt", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	cache.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/service-worker.js", nil))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}
