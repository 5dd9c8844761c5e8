// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/gogpu/canvas/scene"
)

// SoftwareRenderer is the CPU reference renderer. It runs the same vertex
// math as the quad shaders (ClipPosition, then ClipToPixel), fills flat
// quads with their color and samples textures bilinearly multiplied by
// the tint.
//
// World-anchored textured quads are placed with the affine map through
// three projected corners, which matches the GPU exactly for orthographic
// cameras and approximates perspective ones.
//
// Example:
//
//	r := render.NewSoftwareRenderer(scene.White)
//	target := render.NewPixmapTarget(800, 600)
//	err := r.Render(target, render.BuildDrawList(ctx, graph, frame))
//	img := target.Image()
type SoftwareRenderer struct {
	background scene.RGBA
}

// NewSoftwareRenderer creates a renderer that clears to background.
func NewSoftwareRenderer(background scene.RGBA) *SoftwareRenderer {
	return &SoftwareRenderer{background: background}
}

// Render clears target and draws calls in order.
//
// Returns an error if the target is GPU-only (no Pixels).
func (r *SoftwareRenderer) Render(target RenderTarget, calls []DrawCall) error {
	if target == nil {
		return errors.New("render: nil target")
	}
	if target.Pixels() == nil {
		return errors.New("render: software renderer needs a CPU target")
	}
	dst := targetImage(target)
	draw.Draw(dst, dst.Bounds(), image.NewUniform(nrgba(ColorVec(r.background))), image.Point{}, draw.Src)

	w, h := float32(target.Width()), float32(target.Height())
	for i := range calls {
		dc := &calls[i]
		if dc.Uniforms.CanvasSize[0] <= 0 || dc.Uniforms.CanvasSize[1] <= 0 {
			continue
		}
		switch dc.Variant {
		case VariantTextured:
			if dc.Texture == nil || dc.Texture.Image == nil {
				continue
			}
			r.drawTextured(dst, dc, w, h)
		default:
			rect, ok := quadRect(&dc.Uniforms, w, h)
			if !ok {
				continue
			}
			draw.Draw(dst, rect, image.NewUniform(nrgba(dc.Uniforms.Color)), image.Point{}, draw.Over)
		}
	}
	return nil
}

func (r *SoftwareRenderer) drawTextured(dst *image.RGBA, dc *DrawCall, w, h float32) {
	src := tint(dc.Texture.Image, dc.Uniforms.Color)
	sr := src.Bounds()
	if !dc.Uniforms.UseCamera() {
		rect, ok := quadRect(&dc.Uniforms, w, h)
		if !ok {
			return
		}
		draw.BiLinear.Scale(dst, rect, src, sr, draw.Over, nil)
		return
	}

	c00 := ClipPosition(&dc.Uniforms, 0, 0)
	c10 := ClipPosition(&dc.Uniforms, 1, 0)
	c01 := ClipPosition(&dc.Uniforms, 0, 1)
	if c00[3] <= 0 || c10[3] <= 0 || c01[3] <= 0 {
		// Behind the camera.
		return
	}
	p00 := ClipToPixel(c00, w, h)
	p10 := ClipToPixel(c10, w, h)
	p01 := ClipToPixel(c01, w, h)
	sw, sh := float64(sr.Dx()), float64(sr.Dy())
	s2d := f64.Aff3{
		float64(p10.X-p00.X) / sw, float64(p01.X-p00.X) / sh, float64(p00.X),
		float64(p10.Y-p00.Y) / sw, float64(p01.Y-p00.Y) / sh, float64(p00.Y),
	}
	draw.BiLinear.Transform(dst, s2d, src, sr, draw.Over, nil)
}

// quadRect returns the pixel rectangle covered by a quad drawn with the
// 2D mapping.
func quadRect(u *Uniforms, w, h float32) (image.Rectangle, bool) {
	a := ClipToPixel(ClipPosition(u, 0, 0), w, h)
	b := ClipToPixel(ClipPosition(u, 1, 1), w, h)
	x0, x1 := round(min(a.X, b.X)), round(max(a.X, b.X))
	y0, y1 := round(min(a.Y, b.Y)), round(max(a.Y, b.Y))
	rect := image.Rect(x0, y0, x1, y1)
	return rect, !rect.Empty()
}

func round(f float32) int { return int(math.Round(float64(f))) }

// tint multiplies every premultiplied texel by c, as the textured fragment
// shader does.
func tint(src *image.RGBA, c Vec4) *image.RGBA {
	if c == (Vec4{1, 1, 1, 1}) {
		return src
	}
	out := image.NewRGBA(src.Rect)
	var k [4]float32
	for i := range k {
		k[i] = clamp01(c[i])
	}
	for i := 0; i+3 < len(src.Pix); i += 4 {
		for ch := range 4 {
			out.Pix[i+ch] = uint8(float32(src.Pix[i+ch])*k[ch] + 0.5)
		}
	}
	return out
}

// nrgba converts a straight-alpha uniform color.
func nrgba(c Vec4) color.NRGBA {
	return color.NRGBA{
		R: unorm8(c[0]),
		G: unorm8(c[1]),
		B: unorm8(c[2]),
		A: unorm8(c[3]),
	}
}

func unorm8(f float32) uint8 { return uint8(clamp01(f)*255 + 0.5) }

func clamp01(f float32) float32 {
	switch {
	case f < 0 || f != f:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Capabilities reports a CPU renderer with no texture size limit.
func (r *SoftwareRenderer) Capabilities() RendererCapabilities {
	return RendererCapabilities{}
}

var _ CapableRenderer = (*SoftwareRenderer)(nil)
