// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scene defines the shared scene model: elements, the versioned
// graph that holds them, and the ops, deltas and snapshots that move the
// graph from one version to the next.
//
// A Graph is not safe for concurrent mutation. The authoritative copy is
// guarded by store.Store; mirrors replace their copy wholesale (copy on
// write) so readers always see a complete version.
package scene

const unknownStr = "unknown"

// Kind identifies what an element draws. The kind fixes the payload schema
// and the render variant used for the element.
type Kind string

// Element kinds.
const (
	// KindChart is a chart rendered to a texture by the host application.
	KindChart Kind = "chart"

	// KindImage is a decoded raster image sampled as a texture.
	KindImage Kind = "image"

	// KindShape is a flat colored primitive (selection, background, marker).
	KindShape Kind = "shape"
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	if !k.Valid() {
		return unknownStr
	}
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChart, KindImage, KindShape:
		return true
	default:
		return false
	}
}

// Textured reports whether elements of this kind use the textured quad
// variant. Flat kinds use the cheaper color-only variant.
func (k Kind) Textured() bool {
	return k == KindChart || k == KindImage
}

// Anchor selects the coordinate space a textured element lives in.
type Anchor string

const (
	// AnchorScreen places the element in 2D canvas space (the default).
	AnchorScreen Anchor = "screen"

	// AnchorWorld places the element on the z=0 plane of the 3D scene and
	// projects it through the camera's view-projection matrix.
	AnchorWorld Anchor = "world"
)

// UsesCamera reports whether the element should be projected by the camera.
func (a Anchor) UsesCamera() bool {
	return a == AnchorWorld
}
