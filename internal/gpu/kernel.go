//go:build !nogpu

package gpu

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/logisim"
	"github.com/gogpu/wgpu/hal"
)

// Uniform and table record sizes in bytes.
const (
	gridUniformSize = 16
	tableHeaderSize = 16
	tableRowSize    = 8
)

// kernelProgram is a rule lowered to one of the embedded compute shaders.
type kernelProgram struct {
	label   string
	source  string
	netlist bool
	headers []byte
	rows    []byte
}

// lowerRule maps a rule onto a kernel program. Rules without a WGSL
// counterpart fail with logisim.ErrUnsupportedRule.
func lowerRule(rule logisim.Rule) (*kernelProgram, error) {
	switch r := rule.(type) {
	case logisim.IdentityRule, *logisim.IdentityRule:
		return &kernelProgram{label: "tick_identity", source: tickIdentityShaderSource}, nil
	case *logisim.NetlistRule:
		return lowerNetlist(r.Tables)
	default:
		return nil, fmt.Errorf("rule %q: %w", rule.Name(), logisim.ErrUnsupportedRule)
	}
}

func lowerNetlist(tables []logisim.TruthTable) (*kernelProgram, error) {
	p := &kernelProgram{label: "tick_netlist", source: tickNetlistShaderSource, netlist: true}
	var offset uint32
	for i := range tables {
		t := &tables[i]
		if err := t.Validate(); err != nil {
			return nil, err
		}
		p.headers = binary.LittleEndian.AppendUint32(p.headers, uint32(t.Inputs))
		p.headers = binary.LittleEndian.AppendUint32(p.headers, uint32(t.Outputs))
		p.headers = binary.LittleEndian.AppendUint32(p.headers, offset)
		p.headers = binary.LittleEndian.AppendUint32(p.headers, 0)
		for _, row := range t.Rows {
			p.rows = binary.LittleEndian.AppendUint32(p.rows, uint32(row))
			p.rows = binary.LittleEndian.AppendUint32(p.rows, uint32(row>>32))
		}
		offset += uint32(len(t.Rows)) //nolint:gosec // at most 256 rows per table
	}
	// Zero-sized storage bindings are invalid.
	if len(p.headers) == 0 {
		p.headers = make([]byte, tableHeaderSize)
	}
	if len(p.rows) == 0 {
		p.rows = make([]byte, tableRowSize)
	}
	return p, nil
}

// encodeGrid packs the grid uniform: groups_x, groups_y, width, count.
func encodeGrid(g logisim.Grid) []byte {
	b := make([]byte, gridUniformSize)
	binary.LittleEndian.PutUint32(b[0:], g.GroupsX)
	binary.LittleEndian.PutUint32(b[4:], g.GroupsY)
	binary.LittleEndian.PutUint32(b[8:], g.Width())
	binary.LittleEndian.PutUint32(b[12:], uint32(g.Capacity())) //nolint:gosec // bounded by the dispatch limit
	return b
}

// TickKernel is the compute pipeline for one rule bound to a pair of node
// buffers. groups[src] reads slot src and writes the other slot.
type TickKernel struct {
	ctx     *Context
	grid    logisim.Grid
	program *kernelProgram

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	gridBuf  hal.Buffer
	tableBuf hal.Buffer
	rowBuf   hal.Buffer
	groups   [2]hal.BindGroup
}

// NewTickKernel builds the pipeline for rule over nb. grid must cover nb
// exactly.
func NewTickKernel(c *Context, nb *NodeBuffers, grid logisim.Grid, rule logisim.Rule) (*TickKernel, error) {
	if err := grid.Validate(nb.Len()); err != nil {
		return nil, err
	}
	program, err := lowerRule(rule)
	if err != nil {
		return nil, err
	}
	k := &TickKernel{ctx: c, grid: grid, program: program}
	if err := k.createPipeline(); err != nil {
		k.Destroy()
		return nil, err
	}
	if err := k.createBindings(nb); err != nil {
		k.Destroy()
		return nil, err
	}
	slogger().Debug("gpu: tick kernel ready", "shader", program.label, "grid", grid.String())
	return k, nil
}

// Netlist reports whether the kernel runs the netlist shader.
func (k *TickKernel) Netlist() bool { return k.program.netlist }

func (k *TickKernel) createPipeline() error {
	device := k.ctx.device
	shader, err := createShaderModule(device, k.program.label, k.program.source)
	if err != nil {
		return err
	}
	k.shader = shader

	entries := []gputypes.BindGroupLayoutEntry{
		{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
		{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
	}
	if k.program.netlist {
		entries = append(entries,
			gputypes.BindGroupLayoutEntry{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			gputypes.BindGroupLayoutEntry{Binding: 4, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
		)
	}
	bindLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: k.program.label + "_bind_layout", Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create tick bind group layout: %w", err)
	}
	k.bindLayout = bindLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: k.program.label + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{k.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create tick pipeline layout: %w", err)
	}
	k.pipeLayout = pipeLayout

	pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: k.program.label + "_pipeline", Layout: k.pipeLayout,
		Compute: hal.ComputeState{Module: k.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create tick compute pipeline: %w", err)
	}
	k.pipeline = pipeline
	return nil
}

func (k *TickKernel) createBindings(nb *NodeBuffers) error {
	var err error
	if k.gridBuf, err = k.uploadBuffer("logisim_grid", gputypes.BufferUsageUniform, encodeGrid(k.grid)); err != nil {
		return err
	}
	if k.program.netlist {
		if k.tableBuf, err = k.uploadBuffer("logisim_tables", gputypes.BufferUsageStorage, k.program.headers); err != nil {
			return err
		}
		if k.rowBuf, err = k.uploadBuffer("logisim_table_rows", gputypes.BufferUsageStorage, k.program.rows); err != nil {
			return err
		}
	}
	for src := range k.groups {
		entries := []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: nb.Slot(src).NativeHandle(), Size: nb.Size()}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: nb.Slot(src ^ 1).NativeHandle(), Size: nb.Size()}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: k.gridBuf.NativeHandle(), Size: gridUniformSize}},
		}
		if k.program.netlist {
			entries = append(entries,
				gputypes.BindGroupEntry{Binding: 3, Resource: gputypes.BufferBinding{Buffer: k.tableBuf.NativeHandle(), Size: uint64(len(k.program.headers))}},
				gputypes.BindGroupEntry{Binding: 4, Resource: gputypes.BufferBinding{Buffer: k.rowBuf.NativeHandle(), Size: uint64(len(k.program.rows))}},
			)
		}
		bg, err := k.ctx.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label: fmt.Sprintf("%s_bind_%d", k.program.label, src), Layout: k.bindLayout, Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("create tick bind group %d: %w", src, err)
		}
		k.groups[src] = bg
	}
	return nil
}

func (k *TickKernel) uploadBuffer(label string, usage gputypes.BufferUsage, data []byte) (hal.Buffer, error) {
	buf, err := k.ctx.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label, Size: uint64(len(data)), Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	if err := k.ctx.queue.WriteBuffer(buf, 0, data); err != nil {
		k.ctx.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("upload %s buffer: %w", label, err)
	}
	return buf, nil
}

// Step dispatches one update reading slot src and writing slot src^1, and
// waits until it completes or ctx ends.
func (k *TickKernel) Step(ctx context.Context, src int) error {
	cmd, err := k.ctx.encode("logisim_tick", func(enc hal.CommandEncoder) {
		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: k.program.label})
		pass.SetPipeline(k.pipeline)
		pass.SetBindGroup(0, k.groups[src&1], nil)
		pass.Dispatch(k.grid.GroupsX, k.grid.GroupsY, 1)
		pass.End()
	})
	if err != nil {
		return err
	}
	return k.ctx.submit(ctx, cmd)
}

// Destroy releases the pipeline and its bindings.
func (k *TickKernel) Destroy() {
	device := k.ctx.device
	if device == nil {
		return
	}
	for i, bg := range k.groups {
		if bg != nil {
			device.DestroyBindGroup(bg)
			k.groups[i] = nil
		}
	}
	for _, b := range []*hal.Buffer{&k.gridBuf, &k.tableBuf, &k.rowBuf} {
		if *b != nil {
			device.DestroyBuffer(*b)
			*b = nil
		}
	}
	if k.pipeline != nil {
		device.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		device.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bindLayout != nil {
		device.DestroyBindGroupLayout(k.bindLayout)
		k.bindLayout = nil
	}
	if k.shader != nil {
		device.DestroyShaderModule(k.shader)
		k.shader = nil
	}
}
