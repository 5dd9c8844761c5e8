// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/canvas/scene"
)

// Uniform block sizes in bytes.
const (
	// FlatUniformSize is transform, canvas_size and color: three vec4.
	FlatUniformSize = 48

	// TexturedUniformSize adds the view-projection mat4x4.
	TexturedUniformSize = FlatUniformSize + 64

	// uniformAlign is the minimum uniform buffer offset alignment.
	uniformAlign = 256
)

// Uniforms is the per-draw uniform block shared by both quad shaders:
//
//	vec4 transform        x, y, width, height
//	vec4 canvas_size      width, height, use_camera, reserved
//	vec4 color_or_tint    RGBA
//	mat4x4 view_projection  textured variant only
type Uniforms struct {
	Transform      Vec4
	CanvasSize     Vec4
	Color          Vec4
	ViewProjection Mat4

	// Textured selects the 112-byte layout.
	Textured bool
}

// UseCamera reports whether the camera flag is set.
func (u *Uniforms) UseCamera() bool { return u.CanvasSize[2] != 0 }

// Size returns the encoded size of the block.
func (u *Uniforms) Size() int {
	if u.Textured {
		return TexturedUniformSize
	}
	return FlatUniformSize
}

// AppendBinary appends the little-endian float32 encoding of u to b.
func (u *Uniforms) AppendBinary(b []byte) ([]byte, error) {
	b = appendVec(b, u.Transform[:])
	b = appendVec(b, u.CanvasSize[:])
	b = appendVec(b, u.Color[:])
	if u.Textured {
		b = appendVec(b, u.ViewProjection[:])
	}
	return b, nil
}

// MarshalBinary returns the encoded block.
func (u *Uniforms) MarshalBinary() ([]byte, error) {
	return u.AppendBinary(make([]byte, 0, u.Size()))
}

func appendVec(b []byte, v []float32) []byte {
	for _, f := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

// ColorVec converts an element color to its uniform form.
func ColorVec(c scene.RGBA) Vec4 {
	return Vec4{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
}

// alignUniform rounds n up to the uniform offset alignment.
func alignUniform(n int) int {
	return (n + uniformAlign - 1) &^ (uniformAlign - 1)
}
