// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/config"
	"github.com/gogpu/canvas/internal/assets"
	"github.com/gogpu/canvas/mirror"
	"github.com/gogpu/canvas/render"
	"github.com/gogpu/canvas/scene"
	"github.com/gogpu/canvas/transport"
)

type viewerOptions struct {
	cfg     config.Config
	url     string
	out     string
	codec   string
	backend string
	assets  string
	spirv   bool
}

// viewer wires a mirror engine, its transport client and a frame loop.
type viewer struct {
	out      string
	engine   *mirror.Engine
	client   *transport.Client
	renderer render.Renderer
	target   *render.PixmapTarget
	loop     *render.FrameLoop
	release  func()
}

func newViewer(opts viewerOptions) (*viewer, error) {
	codec, err := transport.CodecByName(opts.codec)
	if err != nil {
		return nil, err
	}
	cfg := opts.cfg

	v := &viewer{out: opts.out}
	v.engine = mirror.NewEngine(mirror.WithResyncTimeout(cfg.ResyncTimeout.Std()))
	v.engine.Observe(func(tr mirror.Transition) {
		canvas.Logger().Info("canvasview: mirror state",
			"from", tr.From, "to", tr.To, "version", tr.Version, "reason", tr.Reason)
	})
	v.client = transport.NewClient(opts.url, v.engine, transport.WithCodec(codec))

	v.renderer, v.release, err = openRenderer(opts.backend, cfg.Background(), opts.spirv)
	if err != nil {
		return nil, err
	}

	var loader render.AssetLoader
	if opts.assets != "" {
		loader = assets.Dir(opts.assets)
	}
	placeholder := cfg.Placeholder()
	w, h := cfg.CanvasWidth, cfg.CanvasHeight
	frame := render.Frame{
		Width:          w,
		Height:         h,
		ViewProjection: render.Ortho(0, float32(w), float32(h), 0, -1, 1),
		Textures:       render.NewTextureCache(loader, cfg.TextureCacheSize),
		Placeholder:    &placeholder,
	}
	v.target = render.NewPixmapTarget(int(math.Ceil(w)), int(math.Ceil(h)))
	v.loop = render.NewFrameLoop(v.engine, v.renderer, v.target, frame,
		render.WithInterval(cfg.FrameInterval.Std()),
		render.WithFrameHook(v.frameDone))
	return v, nil
}

func (v *viewer) frameDone(fi render.FrameInfo) {
	if err := writePNG(v.out, v.target.Image()); err != nil {
		canvas.Logger().Warn("canvasview: write frame", "path", v.out, "err", err)
		return
	}
	canvas.Logger().Debug("canvasview: frame written",
		"frame", fi.Frame, "version", fi.Version, "draws", fi.Draws,
		"placeholders", fi.Placeholders, "duration", fi.Duration)
}

// Run follows the session until ctx is done.
func (v *viewer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return v.client.Run(ctx) })
	g.Go(func() error { return v.loop.Run(ctx) })
	return g.Wait()
}

// Close releases the renderer.
func (v *viewer) Close() {
	if v.release != nil {
		v.release()
	}
}

var backends = map[string]gputypes.Backend{
	"vulkan": gputypes.BackendVulkan,
	"metal":  gputypes.BackendMetal,
	"dx12":   gputypes.BackendDX12,
	"gl":     gputypes.BackendGL,
}

// openRenderer returns the renderer named by backend. "auto" tries every
// registered GPU backend and falls back to software.
func openRenderer(backend string, background scene.RGBA, spirv bool) (render.Renderer, func(), error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	gpuOpts := []render.GPUOption{render.WithClearColor(background)}
	if spirv {
		gpuOpts = append(gpuOpts, render.WithSPIRV())
	}

	switch backend {
	case "software":
		return render.NewSoftwareRenderer(background), nil, nil
	case "auto", "":
		for _, b := range hal.AvailableBackends() {
			if b == gputypes.BackendEmpty {
				continue
			}
			r, err := render.NewGPURenderer(render.OpenBackend(b), gpuOpts...)
			if err != nil {
				canvas.Logger().Warn("canvasview: GPU backend unavailable", "backend", b, "err", err)
				continue
			}
			canvas.Logger().Info("canvasview: using GPU renderer", "backend", b)
			return r, r.Close, nil
		}
		canvas.Logger().Info("canvasview: using software renderer")
		return render.NewSoftwareRenderer(background), nil, nil
	}

	b, ok := backends[backend]
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
	r, err := render.NewGPURenderer(render.OpenBackend(b), gpuOpts...)
	if err != nil {
		return nil, nil, err
	}
	return r, r.Close, nil
}

// writePNG replaces path atomically so readers never see a partial file.
func writePNG(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".canvasview-*.png")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
