// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/flat_quad.wgsl
var flatQuadShaderSource string

//go:embed shaders/textured_quad.wgsl
var texturedQuadShaderSource string

// Shader entry points shared by both variants.
const (
	vertexEntry   = "vs_main"
	fragmentEntry = "fs_main"
)

// ShaderSource returns the WGSL source of a pipeline variant.
func ShaderSource(v Variant) string {
	if v == VariantTextured {
		return texturedQuadShaderSource
	}
	return flatQuadShaderSource
}

// CompileSPIRV compiles WGSL to SPIR-V words.
func CompileSPIRV(wgsl string) ([]uint32, error) {
	b, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("render: compile shader: %w", err)
	}
	// SPIR-V is a stream of little-endian 32-bit words.
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}

// shaderModule creates a module for v. With useSPIRV the WGSL is compiled
// by naga first, for backends that only accept SPIR-V.
func shaderModule(device hal.Device, v Variant, useSPIRV bool) (hal.ShaderModule, error) {
	src := hal.ShaderSource{WGSL: ShaderSource(v)}
	if useSPIRV {
		words, err := CompileSPIRV(src.WGSL)
		if err != nil {
			return nil, err
		}
		src = hal.ShaderSource{SPIRV: words}
	}
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  v.String() + "_quad_shader",
		Source: src,
	})
}
