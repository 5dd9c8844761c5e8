// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/internal/cache"
	"github.com/gogpu/canvas/scene"
)

// Texture cache defaults.
const (
	DefaultTextureCacheSize = 64
	DefaultRetryAfter       = 2 * time.Second
)

// Texture is a decoded asset ready for sampling or upload.
type Texture struct {
	Key   string
	Image *image.RGBA
}

// AssetLoader fetches and decodes the asset behind a texture key.
// Decoding lives outside this package.
type AssetLoader interface {
	LoadAsset(ctx context.Context, key string) (image.Image, error)
}

// AssetLoaderFunc adapts a function to AssetLoader.
type AssetLoaderFunc func(ctx context.Context, key string) (image.Image, error)

// LoadAsset calls f.
func (f AssetLoaderFunc) LoadAsset(ctx context.Context, key string) (image.Image, error) {
	return f(ctx, key)
}

// TextureSource resolves texture keys for BuildDrawList.
type TextureSource interface {
	Texture(ctx context.Context, key string) (*Texture, error)
}

// TextureKey returns the texture key of a textured element: the image
// source, or "chart/<id>" for charts, which are rendered to a texture by
// the host application.
func TextureKey(e scene.Element) string {
	switch p := e.Payload.(type) {
	case *scene.ImagePayload:
		return p.Source
	case *scene.ChartPayload:
		return "chart/" + e.ID
	}
	return ""
}

// TextureCache is an LRU of decoded textures keyed by asset key.
// Failed loads are remembered for a retry interval so a missing asset
// does not hit the loader every frame. TextureCache is safe for
// concurrent use.
type TextureCache struct {
	loader     AssetLoader
	lru        *cache.Cache[string, *Texture]
	retryAfter time.Duration
	now        func() time.Time

	mu     sync.Mutex
	failed map[string]time.Time
}

// NewTextureCache returns a cache holding up to size textures.
func NewTextureCache(loader AssetLoader, size int) *TextureCache {
	if size <= 0 {
		size = DefaultTextureCacheSize
	}
	tc := &TextureCache{
		loader:     loader,
		lru:        cache.New[string, *Texture](size),
		retryAfter: DefaultRetryAfter,
		now:        time.Now,
		failed:     make(map[string]time.Time),
	}
	tc.lru.OnEvict(func(key string, _ *Texture) {
		canvas.Logger().Debug("render: texture evicted", "key", key)
	})
	return tc
}

// Texture returns the texture for key, loading it on a miss. Errors wrap
// canvas.ErrAssetUnavailable.
func (tc *TextureCache) Texture(ctx context.Context, key string) (*Texture, error) {
	tc.mu.Lock()
	until, failed := tc.failed[key]
	tc.mu.Unlock()
	if failed && tc.now().Before(until) {
		return nil, fmt.Errorf("render: texture %q: %w", key, canvas.ErrAssetUnavailable)
	}

	t, err := tc.lru.GetOrCreate(key, func() (*Texture, error) {
		if key == "" || tc.loader == nil {
			return nil, errors.New("no asset loader")
		}
		img, err := tc.loader.LoadAsset(ctx, key)
		if err != nil {
			return nil, err
		}
		if img == nil || img.Bounds().Empty() {
			return nil, errors.New("empty image")
		}
		return &Texture{Key: key, Image: toRGBA(img)}, nil
	})
	if err != nil {
		tc.mu.Lock()
		first := !failed
		tc.failed[key] = tc.now().Add(tc.retryAfter)
		tc.mu.Unlock()
		if first {
			canvas.Logger().Warn("render: asset unavailable", "key", key, "err", err)
		}
		return nil, fmt.Errorf("render: texture %q: %w: %w", key, canvas.ErrAssetUnavailable, err)
	}

	if failed {
		tc.mu.Lock()
		delete(tc.failed, key)
		tc.mu.Unlock()
	}
	return t, nil
}

// Put stores an already decoded image under key, replacing any cached
// texture. Hosts use it for chart textures they render themselves.
func (tc *TextureCache) Put(key string, img image.Image) {
	tc.lru.Put(key, &Texture{Key: key, Image: toRGBA(img)})
	tc.mu.Lock()
	delete(tc.failed, key)
	tc.mu.Unlock()
}

// Invalidate drops key so the next lookup reloads it.
func (tc *TextureCache) Invalidate(key string) {
	tc.lru.Remove(key)
	tc.mu.Lock()
	delete(tc.failed, key)
	tc.mu.Unlock()
}

// Len returns the number of cached textures.
func (tc *TextureCache) Len() int { return tc.lru.Len() }

// Stats returns the underlying cache counters.
func (tc *TextureCache) Stats() cache.Stats { return tc.lru.Stats() }

// toRGBA returns img as a zero-origin *image.RGBA.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
