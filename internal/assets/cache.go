// Package assets serves the static pages of the quiz from a fixed manifest,
// cache first.
package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

//go:embed web
var webFS embed.FS

// Manifest is the fixed set of resources the cache will ever serve.
var Manifest = []string{
	"index.html",
	"quiz.html",
	"answer.html",
	"style.css",
	"app.js",
	"manifest.json",
	"service-worker.js",
}

// ErrNotInManifest is returned for any path outside the manifest.
var ErrNotInManifest = errors.New("asset not in manifest")

// Asset is one cached resource.
type Asset struct {
	Name        string
	ContentType string
	ETag        string
	Body        []byte
}

// Loader fetches an asset from its backing store.
type Loader interface {
	Load(ctx context.Context, name string) (Asset, error)
}

// FSLoader reads assets from a file system, the embedded one by default.
type FSLoader struct {
	fsys fs.FS
}

// NewEmbedLoader serves the pages compiled into the binary.
func NewEmbedLoader() *FSLoader {
	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		panic(err)
	}
	return &FSLoader{fsys: sub}
}

func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

func (l *FSLoader) Load(_ context.Context, name string) (Asset, error) {
	body, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return Asset{}, fmt.Errorf("load asset %s: %w", name, err)
	}
	sum := sha256.Sum256(body)
	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Asset{
		Name:        name,
		ContentType: ct,
		ETag:        `"` + hex.EncodeToString(sum[:8]) + `"`,
		Body:        body,
	}, nil
}

// Cache answers from memory and goes to the loader only on a miss. A ttl of
// zero keeps entries for the life of the process.
type Cache struct {
	loader   Loader
	ttl      time.Duration
	clock    func() time.Time
	sf       singleflight.Group
	rnd      *rand.Rand
	rndMu    sync.Mutex
	manifest map[string]struct{}

	mu      sync.RWMutex
	entries map[string]cachedAsset
}

type cachedAsset struct {
	asset     Asset
	expiresAt time.Time
}

func NewCache(loader Loader, ttl time.Duration) *Cache {
	manifest := make(map[string]struct{}, len(Manifest))
	for _, name := range Manifest {
		manifest[name] = struct{}{}
	}
	return &Cache{
		loader:   loader,
		ttl:      ttl,
		clock:    time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		manifest: manifest,
		entries:  make(map[string]cachedAsset),
	}
}

// Get returns a manifest asset, loading it at most once per expiry even
// under concurrent misses.
func (c *Cache) Get(ctx context.Context, name string) (Asset, error) {
	if _, ok := c.manifest[name]; !ok {
		return Asset{}, ErrNotInManifest
	}
	if asset, ok := c.lookup(name); ok {
		return asset, nil
	}

	result, err, _ := c.sf.Do(name, func() (interface{}, error) {
		// Re-check in case another caller filled it.
		if asset, ok := c.lookup(name); ok {
			return asset, nil
		}
		asset, err := c.loader.Load(ctx, name)
		if err != nil {
			return Asset{}, err
		}
		entry := cachedAsset{asset: asset}
		if c.ttl > 0 {
			entry.expiresAt = c.clock().Add(c.ttlWithJitter())
		}
		c.mu.Lock()
		c.entries[name] = entry
		c.mu.Unlock()
		return asset, nil
	})
	if err != nil {
		return Asset{}, err
	}
	return result.(Asset), nil
}

// Preload fills the cache with the whole manifest.
func (c *Cache) Preload(ctx context.Context) error {
	for _, name := range Manifest {
		if _, err := c.Get(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) lookup(name string) (Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[name]
	if !ok {
		return Asset{}, false
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(c.clock()) {
		return Asset{}, false
	}
	return entry.asset, true
}

func (c *Cache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// ServeHTTP serves "/" as index.html and every other manifest entry by name.
func (c *Cache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}
	asset, err := c.Get(r.Context(), name)
	if errors.Is(err, ErrNotInManifest) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "asset unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("ETag", asset.ETag)
	if name == "service-worker.js" {
		w.Header().Set("Cache-Control", "no-cache")
	}
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(asset.Body))
}
