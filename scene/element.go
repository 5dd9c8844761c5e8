// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import (
	"fmt"
	"math"

	"github.com/gogpu/canvas"
)

// Transform places an element on the canvas. (X, Y) is the top-left corner
// in element space; Width and Height are the extent of the unit quad.
type Transform struct {
	X, Y          float64
	Width, Height float64
}

// Array returns the transform as [x, y, w, h], the order used on the wire
// and in the uniform buffer.
func (t Transform) Array() [4]float64 {
	return [4]float64{t.X, t.Y, t.Width, t.Height}
}

// TransformFromArray is the inverse of Transform.Array.
func TransformFromArray(a [4]float64) Transform {
	return Transform{X: a[0], Y: a[1], Width: a[2], Height: a[3]}
}

// Contains reports whether the point (x, y) lies inside the transform's
// rectangle. Edges on the left and top are inclusive, right and bottom
// exclusive, so adjacent elements never both contain a point.
func (t Transform) Contains(x, y float64) bool {
	return x >= t.X && x < t.X+t.Width && y >= t.Y && y < t.Y+t.Height
}

func (t Transform) finite() bool {
	return finite(t.X, t.Y, t.Width, t.Height)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// RGBA is a straight-alpha color with components in [0, 1].
type RGBA struct {
	R, G, B, A float64
}

// Array returns the color as [r, g, b, a].
func (c RGBA) Array() [4]float64 {
	return [4]float64{c.R, c.G, c.B, c.A}
}

// RGBAFromArray is the inverse of RGBA.Array.
func RGBAFromArray(a [4]float64) RGBA {
	return RGBA{R: a[0], G: a[1], B: a[2], A: a[3]}
}

// Common colors.
var (
	White = RGBA{1, 1, 1, 1}
	Black = RGBA{0, 0, 0, 1}
)

func (c RGBA) valid() bool {
	for _, v := range c.Array() {
		if !finite(v) || v < 0 || v > 1 {
			return false
		}
	}
	return true
}

// Element is one visual item of the scene.
//
// For flat kinds Color is the fill color. For textured kinds it is the tint
// multiplied with the sampled texel; the wire format names it "tint" there.
type Element struct {
	ID        string
	Kind      Kind
	Transform Transform
	ZIndex    int
	Color     RGBA
	Payload   Payload
}

// Clone returns a deep copy of e.
func (e Element) Clone() Element {
	e.Payload = clonePayload(e.Payload)
	return e
}

// Anchor returns the element's coordinate space.
func (e Element) Anchor() Anchor {
	if e.Payload == nil {
		return AnchorScreen
	}
	return e.Payload.Anchor()
}

// Validate checks the element's structural invariants. It returns an error
// wrapping canvas.ErrInvalidOp when the element can never be stored.
func (e Element) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("scene: empty element id: %w", canvas.ErrInvalidOp)
	case !e.Kind.Valid():
		return fmt.Errorf("scene: element %q: kind %q: %w", e.ID, string(e.Kind), canvas.ErrInvalidOp)
	case e.Payload == nil:
		return fmt.Errorf("scene: element %q: missing payload: %w", e.ID, canvas.ErrInvalidOp)
	case e.Payload.Kind() != e.Kind:
		return fmt.Errorf("scene: element %q: %s payload on %s element: %w",
			e.ID, e.Payload.Kind(), e.Kind, canvas.ErrInvalidOp)
	case !e.Transform.finite():
		return fmt.Errorf("scene: element %q: non-finite transform: %w", e.ID, canvas.ErrInvalidOp)
	case e.Transform.Width < 0 || e.Transform.Height < 0:
		return fmt.Errorf("scene: element %q: negative size: %w", e.ID, canvas.ErrInvalidOp)
	case !e.Color.valid():
		return fmt.Errorf("scene: element %q: color out of range: %w", e.ID, canvas.ErrInvalidOp)
	case !payloadFinite(e.Payload):
		return fmt.Errorf("scene: element %q: non-finite payload value: %w", e.ID, canvas.ErrInvalidOp)
	}
	return nil
}

// Patch is a partial update of an element. Nil fields are left unchanged.
// The element kind and id are immutable.
type Patch struct {
	Transform *Transform
	ZIndex    *int
	Color     *RGBA
	Payload   Payload
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Transform == nil && p.ZIndex == nil && p.Color == nil && p.Payload == nil
}

// Clone returns a deep copy of p.
func (p Patch) Clone() Patch {
	c := Patch{Payload: clonePayload(p.Payload)}
	if p.Transform != nil {
		t := *p.Transform
		c.Transform = &t
	}
	if p.ZIndex != nil {
		z := *p.ZIndex
		c.ZIndex = &z
	}
	if p.Color != nil {
		col := *p.Color
		c.Color = &col
	}
	return c
}

// applyTo returns e with the patch applied, or an error if the patch is
// inconsistent with e.
func (p Patch) applyTo(e Element) (Element, error) {
	if p.Payload != nil && p.Payload.Kind() != e.Kind {
		return e, fmt.Errorf("%s payload on %s element: %w", p.Payload.Kind(), e.Kind, canvas.ErrInvalidOp)
	}
	if p.Transform != nil {
		e.Transform = *p.Transform
	}
	if p.ZIndex != nil {
		e.ZIndex = *p.ZIndex
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.Payload != nil {
		e.Payload = clonePayload(p.Payload)
	}
	if err := e.Validate(); err != nil {
		return e, err
	}
	return e, nil
}
