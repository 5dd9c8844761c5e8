// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package session ties one authoritative scene store to the hub that
// publishes it and to the host-side operations applied to it: rendering
// content, recording interactions and exporting the canvas.
//
// Sessions never share mutable state. Each owns its store, hub, texture
// cache and interaction log; a Manager only maps ids to sessions.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/config"
	"github.com/gogpu/canvas/render"
	"github.com/gogpu/canvas/scene"
	"github.com/gogpu/canvas/store"
	"github.com/gogpu/canvas/transport"
)

// DefaultInteractionLog is the number of interactions a session keeps.
const DefaultInteractionLog = 256

// Option configures a Session.
type Option func(*options)

type options struct {
	width, height float64
	placeholder   scene.RGBA
	background    scene.RGBA
	camera        *render.Mat4
	logSize       int
	loader        render.AssetLoader
	cacheSize     int
	storeOpts     []store.Option
	hubOpts       []transport.HubOption
}

func defaultOptions() options {
	return options{
		width:       1280,
		height:      720,
		placeholder: render.DefaultPlaceholder,
		background:  scene.White,
		logSize:     DefaultInteractionLog,
		cacheSize:   render.DefaultTextureCacheSize,
	}
}

// WithCanvasSize sets the canvas size used for exports.
func WithCanvasSize(width, height float64) Option {
	return func(o *options) {
		if width > 0 && height > 0 {
			o.width, o.height = width, height
		}
	}
}

// WithColors sets the placeholder and background colors used for exports.
func WithColors(placeholder, background scene.RGBA) Option {
	return func(o *options) {
		o.placeholder = placeholder
		o.background = background
	}
}

// WithCamera sets the view-projection applied to world-anchored elements
// in exports. The default maps world units one to one onto canvas pixels.
func WithCamera(vp render.Mat4) Option {
	return func(o *options) { o.camera = &vp }
}

// WithInteractionLog sets how many interactions are retained.
func WithInteractionLog(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.logSize = n
		}
	}
}

// WithAssetLoader sets the loader for textured elements in exports.
func WithAssetLoader(loader render.AssetLoader) Option {
	return func(o *options) { o.loader = loader }
}

// WithTextureCacheSize sets how many decoded textures a session keeps.
func WithTextureCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// WithStoreOptions passes options to the session's store.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// WithHubOptions passes options to the session's hub. The interact
// handler is always the session's own.
func WithHubOptions(opts ...transport.HubOption) Option {
	return func(o *options) { o.hubOpts = append(o.hubOpts, opts...) }
}

// FromConfig translates cfg into session options.
func FromConfig(cfg config.Config) []Option {
	return []Option{
		WithCanvasSize(cfg.CanvasWidth, cfg.CanvasHeight),
		WithColors(cfg.Placeholder(), cfg.Background()),
		WithInteractionLog(cfg.InteractionLog),
		WithTextureCacheSize(cfg.TextureCacheSize),
		WithStoreOptions(store.WithHistory(cfg.History)),
		WithHubOptions(
			transport.WithSendBuffer(cfg.SendBuffer),
			transport.WithSubscriberBuffer(cfg.SubscriberBuffer),
			transport.WithMaxMalformed(cfg.MaxMalformed),
		),
	}
}

// Session is one shared canvas.
type Session struct {
	ID      string
	Store   *store.Store
	Hub     *transport.Hub
	Created time.Time

	opts     options
	textures *render.TextureCache

	mu        sync.Mutex
	events    []Event // ring of at most opts.logSize
	next      int
	seq       uint64
	observers map[int]func(Event)
	observerN int
}

// New creates a session with an empty store.
func New(id string, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Session{
		ID:        id,
		Store:     store.New(o.storeOpts...),
		Created:   time.Now(),
		opts:      o,
		textures:  render.NewTextureCache(o.loader, o.cacheSize),
		observers: make(map[int]func(Event)),
	}
	hubOpts := append(o.hubOpts[:len(o.hubOpts):len(o.hubOpts)], transport.WithInteractHandler(s.handleInteract))
	s.Hub = transport.NewHub(id, s.Store, hubOpts...)
	return s
}

// Render applies content as one batch: elements with new ids are
// inserted, elements whose id exists are replaced field by field. An
// element whose kind changed is deleted and reinserted. With clear set,
// every element not in content is deleted first, in the same batch.
//
// The whole call yields at most one delta. Rendering nothing into an
// already empty canvas is a no-op and returns a zero delta.
func (s *Session) Render(content []scene.Element, clear bool) (scene.Delta, error) {
	seen := make(map[string]struct{}, len(content))
	for _, e := range content {
		if err := e.Validate(); err != nil {
			return scene.Delta{}, fmt.Errorf("session: render: %w", err)
		}
		if _, dup := seen[e.ID]; dup {
			return scene.Delta{}, fmt.Errorf("session: render: element %q listed twice: %w", e.ID, canvas.ErrDuplicateID)
		}
		seen[e.ID] = struct{}{}
	}

	d, err := s.Store.Update(func(g *scene.Graph) ([]scene.Op, error) {
		var ops []scene.Op
		if clear {
			for _, e := range g.Elements() {
				if _, keep := seen[e.ID]; !keep {
					ops = append(ops, scene.Delete(e.ID))
				}
			}
		}
		for _, e := range content {
			old, ok := g.Get(e.ID)
			switch {
			case !ok:
				ops = append(ops, scene.Insert(e))
			case old.Kind != e.Kind:
				ops = append(ops, scene.Delete(e.ID), scene.Insert(e))
			default:
				ops = append(ops, scene.Update(e.ID, replace(e)))
			}
		}
		return ops, nil
	})
	if err != nil {
		return scene.Delta{}, fmt.Errorf("session: render: %w", err)
	}
	if d.NewVersion != 0 {
		canvas.Logger().Debug("session: rendered",
			"session", s.ID, "version", d.NewVersion, "ops", len(d.Ops), "clear", clear)
	}
	return d, nil
}

// replace returns a patch that sets every mutable field of e.
func replace(e scene.Element) scene.Patch {
	t, z, c := e.Transform, e.ZIndex, e.Color
	return scene.Patch{Transform: &t, ZIndex: &z, Color: &c, Payload: e.Payload}
}

// Export encodes the current canvas in format. Textured elements are
// resolved through the session's texture cache.
func (s *Session) Export(ctx context.Context, format render.Format) ([]byte, string, error) {
	placeholder := s.opts.placeholder
	vp := render.Ortho(0, float32(s.opts.width), float32(s.opts.height), 0, -1, 1)
	if s.opts.camera != nil {
		vp = *s.opts.camera
	}
	return render.Export(ctx, s.Store.Graph(), format, render.ExportOptions{
		Frame: render.Frame{
			Width:          s.opts.width,
			Height:         s.opts.height,
			ViewProjection: vp,
			Textures:       s.textures,
			Placeholder:    &placeholder,
		},
		Background: s.opts.background,
	})
}

// Textures returns the session's texture cache, so hosts can Put chart
// rasters and invalidate changed assets.
func (s *Session) Textures() *render.TextureCache { return s.textures }

// Close disconnects every mirror. The store stays readable.
func (s *Session) Close() {
	s.Hub.Close()
}
