// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"math"

	"github.com/gogpu/canvas/scene"
)

// Vec2 is a 2D point in world or device space.
type Vec2 struct {
	X, Y float32
}

// Vec3 is a 3D vector used to build camera matrices.
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 is a homogeneous vector. It is also the layout of each vec4 field
// in the uniform block.
type Vec4 [4]float32

// Mat4 is a 4x4 matrix in column-major order, the layout WGSL expects for
// mat4x4<f32>. Element (row r, column c) is m[c*4+r].
type Mat4 [16]float32

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at row r, column c.
func (m Mat4) At(r, c int) float32 { return m[c*4+r] }

// Mul returns m * n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for c := range 4 {
		for r := range 4 {
			var s float32
			for k := range 4 {
				s += m[k*4+r] * n[c*4+k]
			}
			out[c*4+r] = s
		}
	}
	return out
}

// MulVec4 returns m * v.
func (m Mat4) MulVec4(v Vec4) Vec4 {
	var out Vec4
	for r := range 4 {
		out[r] = m[r]*v[0] + m[4+r]*v[1] + m[8+r]*v[2] + m[12+r]*v[3]
	}
	return out
}

// Perspective returns a right-handed perspective projection with a [0, 1]
// depth range. fovY is in radians.
func Perspective(fovY, aspect, near, far float32) Mat4 {
	f := float32(1 / math.Tan(float64(fovY)/2))
	nf := 1 / (near - far)
	return Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, far * nf, -1,
		0, 0, near * far * nf, 0,
	}
}

// Ortho returns a right-handed orthographic projection with a [0, 1] depth
// range.
func Ortho(left, right, bottom, top, near, far float32) Mat4 {
	rl := 1 / (right - left)
	tb := 1 / (top - bottom)
	nf := 1 / (near - far)
	return Mat4{
		2 * rl, 0, 0, 0,
		0, 2 * tb, 0, 0,
		0, 0, nf, 0,
		-(right + left) * rl, -(top + bottom) * tb, near * nf, 1,
	}
}

// LookAt returns a right-handed view matrix for a camera at eye looking at
// center.
func LookAt(eye, center, up Vec3) Mat4 {
	f := normalize(sub(center, eye))
	s := normalize(cross(f, up))
	u := cross(s, f)
	return Mat4{
		s.X, u.X, -f.X, 0,
		s.Y, u.Y, -f.Y, 0,
		s.Z, u.Z, -f.Z, 0,
		-dot(s, eye), -dot(u, eye), dot(f, eye), 1,
	}
}

func sub(a, b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

func dot(a, b Vec3) float32 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func cross(a, b Vec3) Vec3 {
	return Vec3{a.Y*b.Z - a.Z*b.Y, a.Z*b.X - a.X*b.Z, a.X*b.Y - a.Y*b.X}
}

func normalize(v Vec3) Vec3 {
	l := float32(math.Sqrt(float64(dot(v, v))))
	if l == 0 {
		return v
	}
	return Vec3{v.X / l, v.Y / l, v.Z / l}
}

// TransformVec packs an element transform into its uniform form
// (x, y, width, height).
func TransformVec(t scene.Transform) Vec4 {
	return Vec4{float32(t.X), float32(t.Y), float32(t.Width), float32(t.Height)}
}

// LocalToWorld maps a unit-quad vertex (lx, ly) through transform
// (x, y, width, height): world = (x + lx*width, y + ly*height).
func LocalToWorld(transform Vec4, lx, ly float32) Vec2 {
	return Vec2{
		X: transform[0] + lx*transform[2],
		Y: transform[1] + ly*transform[3],
	}
}

// WorldToNDC converts a world point on a canvas of size (width, height),
// origin top-left and y down, to normalized device coordinates with y up.
func WorldToNDC(world, canvas Vec2) Vec2 {
	return Vec2{
		X: (world.X/canvas.X)*2 - 1,
		Y: 1 - (world.Y/canvas.Y)*2,
	}
}

// ClipPosition computes the clip-space position the quad shaders produce
// for vertex (lx, ly) under u. Textured draws with the camera flag set
// place the world point on the z=0 plane and project it through the
// view-projection matrix; every other draw uses the 2D NDC mapping.
func ClipPosition(u *Uniforms, lx, ly float32) Vec4 {
	world := LocalToWorld(u.Transform, lx, ly)
	if u.Textured && u.UseCamera() {
		return u.ViewProjection.MulVec4(Vec4{world.X, world.Y, 0, 1})
	}
	ndc := WorldToNDC(world, Vec2{u.CanvasSize[0], u.CanvasSize[1]})
	return Vec4{ndc.X, ndc.Y, 0, 1}
}

// ClipToPixel performs the perspective divide and viewport mapping for a
// target of the given size.
func ClipToPixel(clip Vec4, width, height float32) Vec2 {
	w := clip[3]
	if w == 0 {
		w = 1
	}
	x, y := clip[0]/w, clip[1]/w
	return Vec2{
		X: (x + 1) / 2 * width,
		Y: (1 - y) / 2 * height,
	}
}
