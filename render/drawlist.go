// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"context"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/scene"
)

// Variant selects a quad pipeline.
type Variant uint8

const (
	// VariantFlat draws a solid-color quad.
	VariantFlat Variant = iota

	// VariantTextured samples a texture multiplied by a tint.
	VariantTextured
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantFlat:
		return "flat"
	case VariantTextured:
		return "textured"
	default:
		return "unknown"
	}
}

// DefaultPlaceholder is drawn in place of textured elements whose asset is
// unavailable.
var DefaultPlaceholder = scene.RGBA{R: 0.5, G: 0.5, B: 0.5, A: 1}

// Frame holds the per-frame parameters of a draw list.
type Frame struct {
	// Width and Height are the canvas size in element units.
	Width, Height float64

	// ViewProjection places world-anchored textured elements.
	ViewProjection Mat4

	// Textures resolves texture keys. Nil makes every textured element a
	// placeholder.
	Textures TextureSource

	// Placeholder is the fallback color. The zero value selects
	// DefaultPlaceholder.
	Placeholder *scene.RGBA
}

// DrawCall is one quad draw.
type DrawCall struct {
	ElementID string
	Variant   Variant
	Uniforms  Uniforms

	// Texture is set for VariantTextured.
	Texture *Texture

	// Placeholder marks a flat stand-in for a textured element.
	Placeholder bool
}

// BuildDrawList converts g into draw calls in draw order (z-index
// ascending, insertion order within equal z). Shapes draw flat; charts and
// images draw textured, with the camera flag taken from the payload
// anchor. A textured element whose asset cannot be resolved draws as a
// flat placeholder quad; that is logged, never returned.
func BuildDrawList(ctx context.Context, g *scene.Graph, f Frame) []DrawCall {
	placeholder := DefaultPlaceholder
	if f.Placeholder != nil {
		placeholder = *f.Placeholder
	}
	canvasSize := Vec4{float32(f.Width), float32(f.Height), 0, 0}

	elems := g.DrawOrder()
	calls := make([]DrawCall, 0, len(elems))
	for _, e := range elems {
		dc := DrawCall{
			ElementID: e.ID,
			Variant:   VariantFlat,
			Uniforms: Uniforms{
				Transform:  TransformVec(e.Transform),
				CanvasSize: canvasSize,
				Color:      ColorVec(e.Color),
			},
		}
		if !e.Kind.Textured() {
			calls = append(calls, dc)
			continue
		}

		tex, err := lookupTexture(ctx, f.Textures, TextureKey(e))
		if err != nil {
			canvas.Logger().Debug("render: drawing placeholder", "id", e.ID, "err", err)
			dc.Uniforms.Color = ColorVec(placeholder)
			dc.Placeholder = true
			calls = append(calls, dc)
			continue
		}
		dc.Variant = VariantTextured
		dc.Texture = tex
		dc.Uniforms.Textured = true
		dc.Uniforms.ViewProjection = f.ViewProjection
		if e.Anchor().UsesCamera() {
			dc.Uniforms.CanvasSize[2] = 1
		}
		calls = append(calls, dc)
	}
	return calls
}

func lookupTexture(ctx context.Context, src TextureSource, key string) (*Texture, error) {
	if src == nil {
		return nil, canvas.ErrAssetUnavailable
	}
	t, err := src.Texture(ctx, key)
	if err != nil {
		return nil, err
	}
	if t == nil || t.Image == nil {
		return nil, canvas.ErrAssetUnavailable
	}
	return t, nil
}
