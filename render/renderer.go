// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

// Renderer draws a draw list to a target.
//
// The list is not modified and can be rendered to several targets.
// Renderers are not safe for concurrent use unless stated otherwise.
type Renderer interface {
	// Render clears the target and draws calls in order.
	Render(target RenderTarget, calls []DrawCall) error
}

// Recoverer is implemented by renderers that can rebuild their resources
// after canvas.ErrDeviceLost.
type Recoverer interface {
	Recover() error
}

// RendererCapabilities describes a renderer.
type RendererCapabilities struct {
	// IsGPU indicates a GPU-accelerated renderer.
	IsGPU bool

	// MaxTextureSize is the maximum texture dimension (0 = unlimited).
	MaxTextureSize int
}

// CapableRenderer is an optional interface for renderers that report
// their capabilities.
type CapableRenderer interface {
	Renderer

	Capabilities() RendererCapabilities
}
