// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render draws a scene graph as textured and flat quads.
//
// Every element is a unit quad scaled and offset by its transform
// (x, y, width, height). Shapes draw with a solid color; charts and images
// sample a texture multiplied by the element color. Textured elements
// anchored to the world are placed on the z=0 plane and projected through
// the frame's view-projection matrix; everything else maps canvas units
// to normalized device coordinates directly.
//
// # Pipeline
//
//	scene.Graph ──BuildDrawList──▶ []DrawCall ──Renderer.Render──▶ RenderTarget
//	                  │
//	            TextureSource (TextureCache + AssetLoader)
//
// BuildDrawList orders draws by z-index and resolves textures. A texture
// that cannot be produced yields a flat placeholder quad rather than an
// error.
//
// # Renderers
//
//   - GPURenderer: two wgpu HAL render pipelines, one uniform block per
//     draw at 256-byte aligned offsets, offscreen readback for CPU targets
//   - SoftwareRenderer: the same vertex math on the CPU, used for export
//     and headless mirrors
//
// Both consume the uniform layout described on Uniforms, which the WGSL
// shaders in shaders/ read bit for bit.
//
// # Device
//
// The renderer receives its device through a DeviceOpener: FromProvider
// for a host-owned gpucontext.DeviceProvider, or OpenBackend to open one on
// a registered HAL backend. After canvas.ErrDeviceLost, Recover calls the
// opener again and recreates every GPU object. FrameLoop does this
// automatically and redraws the graph it was drawing.
//
// # Export
//
// Export encodes a graph as png, bmp or tiff through the software renderer,
// or as the json snapshot frame.
package render
