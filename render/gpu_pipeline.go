// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// quadVertices is the unit quad as two triangles, (0,0) top-left.
var quadVertices = [12]float32{
	0, 0, 1, 0, 0, 1,
	0, 1, 1, 0, 1, 1,
}

// quadVertexStride is one vec2<f32> per vertex.
const quadVertexStride = 8

type pipelineKey struct {
	variant Variant
	format  gputypes.TextureFormat
}

// quadPipelines holds the device objects shared by every frame: the unit
// quad vertex buffer, a sampler, per-variant shaders and layouts, and the
// render pipelines, created lazily per target format.
type quadPipelines struct {
	device   hal.Device
	useSPIRV bool

	vertexBuf hal.Buffer
	sampler   hal.Sampler

	shaders     [2]hal.ShaderModule
	groupLayout [2]hal.BindGroupLayout
	pipeLayout  [2]hal.PipelineLayout

	pipelines map[pipelineKey]hal.RenderPipeline
}

func newQuadPipelines(device hal.Device, queue hal.Queue, useSPIRV bool) (*quadPipelines, error) {
	qp := &quadPipelines{
		device:    device,
		useSPIRV:  useSPIRV,
		pipelines: make(map[pipelineKey]hal.RenderPipeline),
	}
	if err := qp.create(queue); err != nil {
		qp.destroy()
		return nil, err
	}
	return qp, nil
}

func (qp *quadPipelines) create(queue hal.Queue) error {
	verts := make([]byte, 0, len(quadVertices)*4)
	for _, f := range quadVertices {
		verts = binary.LittleEndian.AppendUint32(verts, math.Float32bits(f))
	}
	vb, err := qp.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "quad_vertices",
		Size:  uint64(len(verts)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create quad vertex buffer: %w", err)
	}
	qp.vertexBuf = vb
	if err := queue.WriteBuffer(vb, 0, verts); err != nil {
		return fmt.Errorf("upload quad vertices: %w", err)
	}

	sampler, err := qp.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "quad_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return fmt.Errorf("create quad sampler: %w", err)
	}
	qp.sampler = sampler

	for _, v := range []Variant{VariantFlat, VariantTextured} {
		shader, err := shaderModule(qp.device, v, qp.useSPIRV)
		if err != nil {
			return fmt.Errorf("compile %s shader: %w", v, err)
		}
		qp.shaders[v] = shader

		layout, err := qp.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   v.String() + "_quad_layout",
			Entries: bindGroupLayoutEntries(v),
		})
		if err != nil {
			return fmt.Errorf("create %s bind group layout: %w", v, err)
		}
		qp.groupLayout[v] = layout

		pl, err := qp.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            v.String() + "_quad_pipe_layout",
			BindGroupLayouts: []hal.BindGroupLayout{layout},
		})
		if err != nil {
			return fmt.Errorf("create %s pipeline layout: %w", v, err)
		}
		qp.pipeLayout[v] = pl
	}
	return nil
}

func bindGroupLayoutEntries(v Variant) []gputypes.BindGroupLayoutEntry {
	entries := []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
	}
	if v != VariantTextured {
		return entries
	}
	return append(entries,
		gputypes.BindGroupLayoutEntry{
			Binding:    1,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		},
		gputypes.BindGroupLayoutEntry{
			Binding:    2,
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		},
	)
}

// pipeline returns the render pipeline for v drawing into format.
func (qp *quadPipelines) pipeline(v Variant, format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	key := pipelineKey{variant: v, format: format}
	if p, ok := qp.pipelines[key]; ok {
		return p, nil
	}

	// Flat colors are straight alpha; decoded textures are premultiplied.
	blend := gputypes.BlendStateAlpha()
	if v == VariantTextured {
		blend = gputypes.BlendStatePremultiplied()
	}
	p, err := qp.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  v.String() + "_quad_pipeline",
		Layout: qp.pipeLayout[v],
		Vertex: hal.VertexState{
			Module:     qp.shaders[v],
			EntryPoint: vertexEntry,
			Buffers: []gputypes.VertexBufferLayout{
				{
					ArrayStride: quadVertexStride,
					StepMode:    gputypes.VertexStepModeVertex,
					Attributes: []gputypes.VertexAttribute{
						{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					},
				},
			},
		},
		Fragment: &hal.FragmentState{
			Module:     qp.shaders[v],
			EntryPoint: fragmentEntry,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    format,
					Blend:     &blend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.DefaultMultisampleState(),
	})
	if err != nil {
		return nil, fmt.Errorf("create %s pipeline: %w", v, err)
	}
	qp.pipelines[key] = p
	return p, nil
}

// destroy releases everything in reverse creation order. Safe on a
// partially created set.
func (qp *quadPipelines) destroy() {
	if qp.device == nil {
		return
	}
	for k, p := range qp.pipelines {
		qp.device.DestroyRenderPipeline(p)
		delete(qp.pipelines, k)
	}
	for i := len(qp.shaders) - 1; i >= 0; i-- {
		if qp.pipeLayout[i] != nil {
			qp.device.DestroyPipelineLayout(qp.pipeLayout[i])
			qp.pipeLayout[i] = nil
		}
		if qp.groupLayout[i] != nil {
			qp.device.DestroyBindGroupLayout(qp.groupLayout[i])
			qp.groupLayout[i] = nil
		}
		if qp.shaders[i] != nil {
			qp.device.DestroyShaderModule(qp.shaders[i])
			qp.shaders[i] = nil
		}
	}
	if qp.sampler != nil {
		qp.device.DestroySampler(qp.sampler)
		qp.sampler = nil
	}
	if qp.vertexBuf != nil {
		qp.device.DestroyBuffer(qp.vertexBuf)
		qp.vertexBuf = nil
	}
}

// gpuTexture is an uploaded Texture.
type gpuTexture struct {
	tex  hal.Texture
	view hal.TextureView
	used bool
}

func uploadTexture(device hal.Device, queue hal.Queue, t *Texture) (*gpuTexture, error) {
	b := t.Image.Bounds()
	size := hal.Extent3D{Width: uint32(b.Dx()), Height: uint32(b.Dy()), DepthOrArrayLayers: 1}
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "asset:" + t.Key,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", t.Key, err)
	}
	err = queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex},
		t.Image.Pix,
		&hal.ImageDataLayout{BytesPerRow: uint32(t.Image.Stride), RowsPerImage: size.Height},
		&size,
	)
	if err != nil {
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("upload texture %q: %w", t.Key, err)
	}
	view, err := device.CreateTextureView(tex, textureViewDesc("asset_view", gputypes.TextureFormatRGBA8Unorm))
	if err != nil {
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("create texture view %q: %w", t.Key, err)
	}
	return &gpuTexture{tex: tex, view: view}, nil
}

func (g *gpuTexture) destroy(device hal.Device) {
	if g.view != nil {
		device.DestroyTextureView(g.view)
	}
	if g.tex != nil {
		device.DestroyTexture(g.tex)
	}
}

func textureViewDesc(label string, format gputypes.TextureFormat) *hal.TextureViewDescriptor {
	return &hal.TextureViewDescriptor{
		Label:           label,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	}
}

// offscreen is the render texture and readback buffer used for CPU
// targets.
type offscreen struct {
	width, height int
	bytesPerRow   int

	tex     hal.Texture
	view    hal.TextureView
	staging hal.Buffer
}

func newOffscreen(device hal.Device, width, height int) (*offscreen, error) {
	o := &offscreen{
		width:       width,
		height:      height,
		bytesPerRow: alignUniform(width * 4),
	}
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "offscreen_target",
		Size:          hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create offscreen texture: %w", err)
	}
	o.tex = tex
	view, err := device.CreateTextureView(tex, textureViewDesc("offscreen_view", gputypes.TextureFormatRGBA8Unorm))
	if err != nil {
		o.destroy(device)
		return nil, fmt.Errorf("create offscreen view: %w", err)
	}
	o.view = view
	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "offscreen_readback",
		Size:  uint64(o.bytesPerRow * height),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		o.destroy(device)
		return nil, fmt.Errorf("create readback buffer: %w", err)
	}
	o.staging = staging
	return o, nil
}

func (o *offscreen) destroy(device hal.Device) {
	if o.staging != nil {
		device.DestroyBuffer(o.staging)
		o.staging = nil
	}
	if o.view != nil {
		device.DestroyTextureView(o.view)
		o.view = nil
	}
	if o.tex != nil {
		device.DestroyTexture(o.tex)
		o.tex = nil
	}
}
