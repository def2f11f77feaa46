//go:build !nogpu

package gpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/logisim"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the WebGPU row alignment for texture/buffer copies.
const copyPitchAlignment = 256

// NodeRenderer draws circuit meshes into an offscreen RGBA8 target and reads
// the result back into an *image.RGBA.
type NodeRenderer struct {
	ctx *Context
	nb  *NodeBuffers

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline

	localsBuf hal.Buffer
	vertexBuf hal.Buffer
	indexBuf  hal.Buffer
	vertexCap uint64
	indexCap  uint64

	atlas  *atlasTexture
	groups [2]hal.BindGroup

	target      hal.Texture
	targetView  hal.TextureView
	staging     hal.Buffer
	targetW     uint32
	targetH     uint32
	alignedRow  uint32
	vertexBytes []byte
	indexBytes  []byte
}

// NewNodeRenderer builds the render pipeline over nb with a 1x1 white atlas.
func NewNodeRenderer(c *Context, nb *NodeBuffers) (*NodeRenderer, error) {
	r := &NodeRenderer{ctx: c, nb: nb}
	if err := r.createPipeline(); err != nil {
		r.Destroy()
		return nil, err
	}
	locals, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "logisim_locals", Size: logisim.LocalsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		r.Destroy()
		return nil, fmt.Errorf("create locals buffer: %w", err)
	}
	r.localsBuf = locals
	if err := r.SetAtlas(whiteAtlas()); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

func (r *NodeRenderer) createPipeline() error {
	device := r.ctx.device
	shader, err := createShaderModule(device, "node_render", nodeRenderShaderSource)
	if err != nil {
		return err
	}
	r.shader = shader

	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "node_render_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageVertex, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageVertex, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageFragment, Texture: &gputypes.TextureBindingLayout{
				SampleType: gputypes.TextureSampleTypeFloat, ViewDimension: gputypes.TextureViewDimension2D,
			}},
			{Binding: 3, Visibility: gputypes.ShaderStageFragment, Sampler: &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}},
		},
	})
	if err != nil {
		return fmt.Errorf("create render bind group layout: %w", err)
	}
	r.bindLayout = bindLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "node_render_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{r.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create render pipeline layout: %w", err)
	}
	r.pipeLayout = pipeLayout

	blend := gputypes.BlendStateAlpha()
	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "node_render_pipeline",
		Layout: r.pipeLayout,
		Vertex: hal.VertexState{
			Module:     r.shader,
			EntryPoint: "vs_main",
			Buffers: []gputypes.VertexBufferLayout{{
				ArrayStride: logisim.VertexStride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
					{Format: gputypes.VertexFormatUint32x2, Offset: 8, ShaderLocation: 1},
					{Format: gputypes.VertexFormatUint32, Offset: 16, ShaderLocation: 2},
					{Format: gputypes.VertexFormatUint32, Offset: 20, ShaderLocation: 3},
				},
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &hal.FragmentState{
			Module:     r.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    gputypes.TextureFormatRGBA8Unorm,
				Blend:     &blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("create render pipeline: %w", err)
	}
	r.pipeline = pipeline
	slogger().Debug("gpu: render pipeline created")
	return nil
}

// AtlasSize returns the edge length of the current atlas in texels.
func (r *NodeRenderer) AtlasSize() uint32 {
	if r.atlas == nil {
		return 0
	}
	return r.atlas.size
}

// SetAtlas replaces the atlas texture and rebinds it.
func (r *NodeRenderer) SetAtlas(img *image.RGBA) error {
	atlas, err := newAtlasTexture(r.ctx, img)
	if err != nil {
		return err
	}
	old := r.atlas
	r.atlas = atlas
	if err := r.createBindGroups(); err != nil {
		r.atlas = old
		atlas.destroy(r.ctx.device)
		return err
	}
	if old != nil {
		old.destroy(r.ctx.device)
	}
	return nil
}

func (r *NodeRenderer) createBindGroups() error {
	var groups [2]hal.BindGroup
	for slot := range groups {
		bg, err := r.ctx.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  fmt.Sprintf("node_render_bind_%d", slot),
			Layout: r.bindLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.BufferBinding{Buffer: r.localsBuf.NativeHandle(), Size: logisim.LocalsSize}},
				{Binding: 1, Resource: gputypes.BufferBinding{Buffer: r.nb.Slot(slot).NativeHandle(), Size: r.nb.Size()}},
				{Binding: 2, Resource: gputypes.TextureViewBinding{TextureView: r.atlas.view.NativeHandle()}},
				{Binding: 3, Resource: gputypes.SamplerBinding{Sampler: r.atlas.sampler.NativeHandle()}},
			},
		})
		if err != nil {
			for _, g := range groups {
				if g != nil {
					r.ctx.device.DestroyBindGroup(g)
				}
			}
			return fmt.Errorf("create render bind group %d: %w", slot, err)
		}
		groups[slot] = bg
	}
	r.destroyBindGroups()
	r.groups = groups
	return nil
}

func (r *NodeRenderer) destroyBindGroups() {
	for i, g := range r.groups {
		if g != nil {
			r.ctx.device.DestroyBindGroup(g)
			r.groups[i] = nil
		}
	}
}

// ensureTarget (re)creates the offscreen target and its staging buffer for
// a w x h frame.
func (r *NodeRenderer) ensureTarget(w, h uint32) error {
	if r.target != nil && r.targetW == w && r.targetH == h {
		return nil
	}
	r.destroyTarget()
	device := r.ctx.device
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "logisim_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc |
			gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create target texture: %w", err)
	}
	r.target = tex
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "logisim_target_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		r.destroyTarget()
		return fmt.Errorf("create target view: %w", err)
	}
	r.targetView = view

	r.alignedRow = (w*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "logisim_target_staging",
		Size:  uint64(r.alignedRow) * uint64(h),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		r.destroyTarget()
		return fmt.Errorf("create target staging buffer: %w", err)
	}
	r.staging = staging
	r.targetW, r.targetH = w, h
	slogger().Debug("gpu: render target allocated", "width", w, "height", h)
	return nil
}

func (r *NodeRenderer) destroyTarget() {
	device := r.ctx.device
	if r.staging != nil {
		device.DestroyBuffer(r.staging)
		r.staging = nil
	}
	if r.targetView != nil {
		device.DestroyTextureView(r.targetView)
		r.targetView = nil
	}
	if r.target != nil {
		device.DestroyTexture(r.target)
		r.target = nil
	}
	r.targetW, r.targetH = 0, 0
}

// ensureBuffer grows *buf to hold size bytes, doubling the capacity.
func (r *NodeRenderer) ensureBuffer(buf *hal.Buffer, capacity *uint64, size uint64, usage gputypes.BufferUsage, label string) error {
	if *buf != nil && *capacity >= size {
		return nil
	}
	newCap := max(*capacity, 256)
	for newCap < size {
		newCap *= 2
	}
	b, err := r.ctx.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: newCap, Usage: usage | gputypes.BufferUsageCopyDst})
	if err != nil {
		return fmt.Errorf("create %s buffer: %w", label, err)
	}
	if *buf != nil {
		r.ctx.device.DestroyBuffer(*buf)
	}
	*buf, *capacity = b, newCap
	return nil
}

// uploadMesh writes the mesh and locals to their buffers.
func (r *NodeRenderer) uploadMesh(mesh *logisim.Mesh, locals *logisim.Locals) error {
	queue := r.ctx.queue
	if err := queue.WriteBuffer(r.localsBuf, 0, locals.Bytes()); err != nil {
		return fmt.Errorf("upload locals: %w", err)
	}
	r.vertexBytes = logisim.EncodeVertices(r.vertexBytes, mesh.Vertices)
	if err := r.ensureBuffer(&r.vertexBuf, &r.vertexCap, uint64(len(r.vertexBytes)), gputypes.BufferUsageVertex, "logisim_vertices"); err != nil {
		return err
	}
	if err := queue.WriteBuffer(r.vertexBuf, 0, r.vertexBytes); err != nil {
		return fmt.Errorf("upload vertices: %w", err)
	}
	r.indexBytes = r.indexBytes[:0]
	for _, idx := range mesh.Indices {
		r.indexBytes = binary.LittleEndian.AppendUint32(r.indexBytes, idx)
	}
	if err := r.ensureBuffer(&r.indexBuf, &r.indexCap, uint64(len(r.indexBytes)), gputypes.BufferUsageIndex, "logisim_indices"); err != nil {
		return err
	}
	if err := queue.WriteBuffer(r.indexBuf, 0, r.indexBytes); err != nil {
		return fmt.Errorf("upload indices: %w", err)
	}
	return nil
}

// Draw renders mesh into target with node colors taken from slot. With a
// nil clear the existing target pixels are uploaded and blended over.
func (r *NodeRenderer) Draw(ctx context.Context, target *image.RGBA, mesh *logisim.Mesh, locals logisim.Locals, slot int, clear *logisim.Color) error {
	w, h := target.Rect.Dx(), target.Rect.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	tw, th := uint32(w), uint32(h) //nolint:gosec // image bounds are non-negative
	if err := r.ensureTarget(tw, th); err != nil {
		return err
	}
	draw := !mesh.Empty()
	if draw {
		if err := r.uploadMesh(mesh, &locals); err != nil {
			return err
		}
	}

	loadOp := gputypes.LoadOpClear
	var clearValue gputypes.Color
	if clear != nil {
		f := clear.Floats()
		clearValue = gputypes.Color{R: float64(f[0]), G: float64(f[1]), B: float64(f[2]), A: float64(f[3])}
	} else {
		loadOp = gputypes.LoadOpLoad
		if err := r.ctx.queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: r.target, Aspect: gputypes.TextureAspectAll},
			tightPixels(target),
			&hal.ImageDataLayout{BytesPerRow: tw * 4, RowsPerImage: th},
			&hal.Extent3D{Width: tw, Height: th, DepthOrArrayLayers: 1},
		); err != nil {
			return fmt.Errorf("upload target: %w", err)
		}
	}

	cmd, err := r.ctx.encode("logisim_draw", func(enc hal.CommandEncoder) {
		if loadOp == gputypes.LoadOpLoad {
			enc.TransitionTextures([]hal.TextureBarrier{{
				Texture: r.target,
				Usage: hal.TextureUsageTransition{
					OldUsage: gputypes.TextureUsageCopyDst,
					NewUsage: gputypes.TextureUsageRenderAttachment,
				},
			}})
		}
		rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: "node_render_pass",
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:       r.targetView,
				LoadOp:     loadOp,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: clearValue,
			}},
		})
		if draw {
			rp.SetPipeline(r.pipeline)
			rp.SetBindGroup(0, r.groups[slot&1], nil)
			rp.SetVertexBuffer(0, r.vertexBuf, 0)
			rp.SetIndexBuffer(r.indexBuf, gputypes.IndexFormatUint32, 0)
			rp.DrawIndexed(uint32(len(mesh.Indices)), 1, 0, 0, 0) //nolint:gosec // index count fits the buffer
		}
		rp.End()

		// The copy needs the target in transfer-source layout.
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: r.target,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
		enc.CopyTextureToBuffer(r.target, r.staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: r.alignedRow, RowsPerImage: th},
			TextureBase:  hal.ImageCopyTexture{Texture: r.target, MipLevel: 0, Aspect: gputypes.TextureAspectAll},
			Size:         hal.Extent3D{Width: tw, Height: th, DepthOrArrayLayers: 1},
		}})
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: r.target,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopySrc,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		}})
	})
	if err != nil {
		return err
	}
	if err := r.ctx.submit(ctx, cmd); err != nil {
		return fmt.Errorf("draw: %w", err)
	}

	readback, err := mapRead(r.ctx.device, r.staging, uint64(r.alignedRow)*uint64(th))
	if err != nil {
		return fmt.Errorf("draw readback: %w", err)
	}
	row := w * 4
	for y := range h {
		off := target.PixOffset(target.Rect.Min.X, target.Rect.Min.Y+y)
		src := y * int(r.alignedRow)
		copy(target.Pix[off:off+row], readback[src:src+row])
	}
	return nil
}

// Destroy releases every renderer resource.
func (r *NodeRenderer) Destroy() {
	device := r.ctx.device
	if device == nil {
		return
	}
	r.destroyTarget()
	r.destroyBindGroups()
	if r.atlas != nil {
		r.atlas.destroy(device)
		r.atlas = nil
	}
	for _, b := range []*hal.Buffer{&r.localsBuf, &r.vertexBuf, &r.indexBuf} {
		if *b != nil {
			device.DestroyBuffer(*b)
			*b = nil
		}
	}
	r.vertexCap, r.indexCap = 0, 0
	if r.pipeline != nil {
		device.DestroyRenderPipeline(r.pipeline)
		r.pipeline = nil
	}
	if r.pipeLayout != nil {
		device.DestroyPipelineLayout(r.pipeLayout)
		r.pipeLayout = nil
	}
	if r.bindLayout != nil {
		device.DestroyBindGroupLayout(r.bindLayout)
		r.bindLayout = nil
	}
	if r.shader != nil {
		device.DestroyShaderModule(r.shader)
		r.shader = nil
	}
}
