// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/scene"
)

// GPURenderer draws draw lists with two quad pipelines on a wgpu HAL
// device.
//
// Each frame writes every draw's uniform block into one buffer at
// 256-byte aligned offsets and binds a per-draw bind group. Surface
// targets are drawn directly; CPU targets are drawn offscreen and read
// back into the target's pixels.
//
// When submission or the wait for completion fails, the renderer is
// marked lost and every Render returns canvas.ErrDeviceLost until
// Recover succeeds.
//
// Example:
//
//	r, err := render.NewGPURenderer(render.OpenBackend(gputypes.BackendVulkan))
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	target := render.NewPixmapTarget(800, 600)
//	err = r.Render(target, render.BuildDrawList(ctx, graph, frame))
type GPURenderer struct {
	mu sync.Mutex

	open    DeviceOpener
	release func()
	device  hal.Device
	queue   hal.Queue
	limits  gputypes.Limits

	useSPIRV bool
	clear    gputypes.Color

	pipes      *quadPipelines
	textures   map[*Texture]*gpuTexture
	offscreen  *offscreen
	uniformBuf hal.Buffer
	uniformCap int

	lost   bool
	frames uint64
}

// GPUOption configures a GPURenderer.
type GPUOption func(*GPURenderer)

// WithSPIRV compiles the WGSL shaders to SPIR-V with naga before creating
// shader modules.
func WithSPIRV() GPUOption {
	return func(r *GPURenderer) { r.useSPIRV = true }
}

// WithClearColor sets the background every frame starts from. The default
// is transparent black.
func WithClearColor(c scene.RGBA) GPUOption {
	return func(r *GPURenderer) {
		r.clear = gputypes.Color{R: c.R, G: c.G, B: c.B, A: c.A}
	}
}

// NewGPURenderer opens a device through open and creates the pipelines.
func NewGPURenderer(open DeviceOpener, opts ...GPUOption) (*GPURenderer, error) {
	if open == nil {
		return nil, errors.New("render: nil device opener")
	}
	r := &GPURenderer{
		open:     open,
		textures: make(map[*Texture]*gpuTexture),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *GPURenderer) init() error {
	od, release, err := r.open()
	if err != nil {
		return fmt.Errorf("render: open device: %w", err)
	}
	if od.Device == nil || od.Queue == nil {
		if release != nil {
			release()
		}
		return errors.New("render: opener returned no device")
	}
	r.device, r.queue, r.release = od.Device, od.Queue, release
	r.limits = gputypes.DefaultLimits()

	pipes, err := newQuadPipelines(r.device, r.queue, r.useSPIRV)
	if err != nil {
		r.teardown()
		return fmt.Errorf("render: %w", err)
	}
	r.pipes = pipes
	return nil
}

// Render clears target and draws calls in order.
func (r *GPURenderer) Render(target RenderTarget, calls []DrawCall) error {
	if target == nil {
		return errors.New("render: nil target")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lost {
		return fmt.Errorf("render: %w", canvas.ErrDeviceLost)
	}
	if r.device == nil {
		return errors.New("render: renderer closed")
	}
	w, h := target.Width(), target.Height()
	if w <= 0 || h <= 0 {
		return nil
	}

	view := target.TextureView()
	format := target.Format()
	readback := view == nil
	if readback {
		if target.Pixels() == nil {
			return errors.New("render: target has neither a texture view nor pixels")
		}
		if err := r.ensureOffscreen(w, h); err != nil {
			return err
		}
		view = r.offscreen.view
		format = gputypes.TextureFormatRGBA8Unorm
	}

	if err := r.writeUniforms(calls); err != nil {
		return r.fail("write uniforms", err)
	}
	groups, err := r.bindGroups(calls)
	defer func() {
		for _, g := range groups {
			r.device.DestroyBindGroup(g)
		}
	}()
	if err != nil {
		return err
	}

	if err := r.encodeAndSubmit(view, format, calls, groups, readback); err != nil {
		return err
	}
	if readback {
		if err := r.readback(target); err != nil {
			return r.fail("readback", err)
		}
	}
	r.sweepTextures()
	r.frames++
	canvas.Logger().Debug("render: gpu frame", "frame", r.frames, "draws", len(calls))
	return nil
}

func (r *GPURenderer) ensureOffscreen(w, h int) error {
	if r.offscreen != nil && r.offscreen.width == w && r.offscreen.height == h {
		return nil
	}
	if r.offscreen != nil {
		r.offscreen.destroy(r.device)
		r.offscreen = nil
	}
	o, err := newOffscreen(r.device, w, h)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	r.offscreen = o
	return nil
}

// writeUniforms packs every call's block at its aligned slot and uploads
// them in one write.
func (r *GPURenderer) writeUniforms(calls []DrawCall) error {
	if len(calls) == 0 {
		return nil
	}
	size := len(calls) * uniformAlign
	if size > r.uniformCap {
		if r.uniformBuf != nil {
			r.device.DestroyBuffer(r.uniformBuf)
			r.uniformBuf = nil
			r.uniformCap = 0
		}
		capacity := max(size, 16*uniformAlign)
		buf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "quad_uniforms",
			Size:  uint64(capacity),
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create uniform buffer: %w", err)
		}
		r.uniformBuf, r.uniformCap = buf, capacity
	}

	data := make([]byte, 0, size)
	for i := range calls {
		var err error
		data, err = calls[i].Uniforms.AppendBinary(data)
		if err != nil {
			return err
		}
		data = data[:alignUniform(len(data))]
	}
	return r.queue.WriteBuffer(r.uniformBuf, 0, data)
}

func (r *GPURenderer) bindGroups(calls []DrawCall) ([]hal.BindGroup, error) {
	groups := make([]hal.BindGroup, 0, len(calls))
	for i := range calls {
		dc := &calls[i]
		v := dc.Variant
		entries := []gputypes.BindGroupEntry{
			{
				Binding: 0,
				Resource: gputypes.BufferBinding{
					Buffer: r.uniformBuf.NativeHandle(),
					Offset: uint64(i * uniformAlign),
					Size:   uint64(dc.Uniforms.Size()),
				},
			},
		}
		if v == VariantTextured {
			gt, err := r.texture(dc.Texture)
			if err != nil {
				return groups, r.fail("upload texture", err)
			}
			entries = append(entries,
				gputypes.BindGroupEntry{Binding: 1, Resource: gputypes.TextureViewBinding{TextureView: gt.view.NativeHandle()}},
				gputypes.BindGroupEntry{Binding: 2, Resource: gputypes.SamplerBinding{Sampler: r.pipes.sampler.NativeHandle()}},
			)
		}
		g, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   v.String() + "_quad_bind_group",
			Layout:  r.pipes.groupLayout[v],
			Entries: entries,
		})
		if err != nil {
			return groups, r.fail("create bind group", err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// texture returns the uploaded form of t, uploading it on first use.
func (r *GPURenderer) texture(t *Texture) (*gpuTexture, error) {
	if t == nil || t.Image == nil {
		return nil, canvas.ErrAssetUnavailable
	}
	if gt, ok := r.textures[t]; ok {
		gt.used = true
		return gt, nil
	}
	gt, err := uploadTexture(r.device, r.queue, t)
	if err != nil {
		return nil, err
	}
	gt.used = true
	r.textures[t] = gt
	return gt, nil
}

// sweepTextures releases uploads not referenced by the last frame.
func (r *GPURenderer) sweepTextures() {
	for t, gt := range r.textures {
		if !gt.used {
			gt.destroy(r.device)
			delete(r.textures, t)
			continue
		}
		gt.used = false
	}
}

func (r *GPURenderer) encodeAndSubmit(view hal.TextureView, format gputypes.TextureFormat, calls []DrawCall, groups []hal.BindGroup, readback bool) error {
	pipelines := make([]hal.RenderPipeline, len(calls))
	for i := range calls {
		p, err := r.pipes.pipeline(calls[i].Variant, format)
		if err != nil {
			return r.fail("pipeline", err)
		}
		pipelines[i] = p
	}

	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "canvas_frame"})
	if err != nil {
		return r.fail("create encoder", err)
	}
	if err := encoder.BeginEncoding("canvas_frame"); err != nil {
		return r.fail("begin encoding", err)
	}

	pass := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "canvas_quads",
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: r.clear,
			},
		},
	})
	if len(calls) > 0 {
		pass.SetVertexBuffer(0, r.pipes.vertexBuf, 0)
	}
	for i := range calls {
		pass.SetPipeline(pipelines[i])
		pass.SetBindGroup(0, groups[i], nil)
		pass.Draw(uint32(len(quadVertices)/2), 1, 0, 0)
	}
	pass.End()

	if readback {
		o := r.offscreen
		encoder.CopyTextureToBuffer(o.tex, o.staging, []hal.BufferTextureCopy{
			{
				BufferLayout: hal.ImageDataLayout{
					BytesPerRow:  uint32(o.bytesPerRow),
					RowsPerImage: uint32(o.height),
				},
				TextureBase: hal.ImageCopyTexture{Texture: o.tex},
				Size:        hal.Extent3D{Width: uint32(o.width), Height: uint32(o.height), DepthOrArrayLayers: 1},
			},
		})
	}

	cmd, err := encoder.EndEncoding()
	if err != nil {
		return r.fail("end encoding", err)
	}
	defer r.device.FreeCommandBuffer(cmd)

	if _, err := r.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return r.markLost("submit", err)
	}
	if err := r.device.WaitIdle(); err != nil {
		return r.markLost("wait", err)
	}
	return nil
}

// readback copies the offscreen rows into the target's pixels.
func (r *GPURenderer) readback(target RenderTarget) error {
	o := r.offscreen
	size := uint64(o.bytesPerRow * o.height)
	m, err := r.device.MapBuffer(o.staging, 0, size)
	if err != nil {
		return err
	}
	src := unsafe.Slice((*byte)(m.Ptr), size)
	dst, stride := target.Pixels(), target.Stride()
	row := o.width * 4
	for y := range o.height {
		copy(dst[y*stride:y*stride+row], src[y*o.bytesPerRow:y*o.bytesPerRow+row])
	}
	return r.device.UnmapBuffer(o.staging)
}

// fail wraps err, marking the renderer lost when the HAL reports it.
func (r *GPURenderer) fail(op string, err error) error {
	if errors.Is(err, hal.ErrDeviceLost) {
		return r.markLost(op, err)
	}
	return fmt.Errorf("render: %s: %w", op, err)
}

func (r *GPURenderer) markLost(op string, err error) error {
	if !r.lost {
		canvas.Logger().Warn("render: device lost", "op", op, "err", err)
	}
	r.lost = true
	return fmt.Errorf("render: %s: %w: %w", op, canvas.ErrDeviceLost, err)
}

// Lost reports whether the renderer needs Recover.
func (r *GPURenderer) Lost() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost
}

// Recover drops every GPU object, reopens the device and recreates the
// pipelines. Uploaded textures are re-uploaded on next use from the
// decoded images the draw list carries.
func (r *GPURenderer) Recover() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.teardown()
	if err := r.init(); err != nil {
		return err
	}
	r.lost = false
	canvas.Logger().Info("render: device recovered")
	return nil
}

// Close releases all GPU objects and the device if the renderer opened it.
func (r *GPURenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardown()
}

// teardown destroys everything created on the current device. Destroy
// calls on a lost device are tolerated by the HAL.
func (r *GPURenderer) teardown() {
	if r.device != nil {
		for t, gt := range r.textures {
			gt.destroy(r.device)
			delete(r.textures, t)
		}
		if r.offscreen != nil {
			r.offscreen.destroy(r.device)
			r.offscreen = nil
		}
		if r.uniformBuf != nil {
			r.device.DestroyBuffer(r.uniformBuf)
			r.uniformBuf, r.uniformCap = nil, 0
		}
		if r.pipes != nil {
			r.pipes.destroy()
			r.pipes = nil
		}
	}
	if r.release != nil {
		r.release()
		r.release = nil
	}
	r.device, r.queue = nil, nil
}

// Capabilities reports a GPU renderer and the device texture limit.
func (r *GPURenderer) Capabilities() RendererCapabilities {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RendererCapabilities{
		IsGPU:          true,
		MaxTextureSize: int(r.limits.MaxTextureDimension2D),
	}
}

var (
	_ Renderer        = (*GPURenderer)(nil)
	_ Recoverer       = (*GPURenderer)(nil)
	_ CapableRenderer = (*GPURenderer)(nil)
)
