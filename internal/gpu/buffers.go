//go:build !nogpu

package gpu

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/logisim"
	"github.com/gogpu/wgpu/hal"
)

// NodeBuffers is the device-side double buffer: two storage buffers of the
// same length addressed by slot, and one staging buffer for readback.
type NodeBuffers struct {
	ctx     *Context
	slots   [2]hal.Buffer
	staging hal.Buffer
	count   int
	size    uint64
	scratch []byte
}

// NewNodeBuffers allocates both slots for len(nodes) nodes and seeds them
// with nodes.
func NewNodeBuffers(c *Context, nodes []logisim.Node) (*NodeBuffers, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("allocate node buffers: no nodes: %w", logisim.ErrGridCoverage)
	}
	nb := &NodeBuffers{ctx: c, count: len(nodes), size: uint64(len(nodes)) * logisim.NodeSize}
	for i := range nb.slots {
		buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("logisim_nodes_%d", i),
			Size:  nb.size,
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
		})
		if err != nil {
			nb.Destroy()
			return nil, fmt.Errorf("create node buffer %d: %w", i, err)
		}
		nb.slots[i] = buf
	}
	staging, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "logisim_nodes_staging",
		Size:  nb.size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		nb.Destroy()
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	nb.staging = staging
	for i := range nb.slots {
		if err := nb.Write(i, 0, nodes); err != nil {
			nb.Destroy()
			return nil, err
		}
	}
	slogger().Debug("gpu: node buffers allocated", "nodes", nb.count, "bytes", nb.size)
	return nb, nil
}

// Len returns the number of nodes per slot.
func (nb *NodeBuffers) Len() int { return nb.count }

// Size returns the size of each slot in bytes.
func (nb *NodeBuffers) Size() uint64 { return nb.size }

// Slot returns the storage buffer of slot i (0 or 1).
func (nb *NodeBuffers) Slot(i int) hal.Buffer { return nb.slots[i&1] }

func (nb *NodeBuffers) checkRange(op string, offset, n int) error {
	if offset < 0 || n < 0 || offset+n > nb.count {
		return fmt.Errorf("%s nodes [%d,%d) of %d: %w", op, offset, offset+n, nb.count, logisim.ErrNodeOutOfRange)
	}
	return nil
}

// Write uploads nodes into slot starting at node offset.
func (nb *NodeBuffers) Write(slot, offset int, nodes []logisim.Node) error {
	if err := nb.checkRange("write", offset, len(nodes)); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}
	nb.scratch = logisim.EncodeNodes(nb.scratch, nodes)
	if err := nb.ctx.queue.WriteBuffer(nb.Slot(slot), uint64(offset)*logisim.NodeSize, nb.scratch); err != nil {
		return fmt.Errorf("write node buffer %d: %w", slot&1, err)
	}
	return nil
}

// Read copies len(dst) nodes of slot starting at offset into dst, going
// through the staging buffer.
func (nb *NodeBuffers) Read(ctx context.Context, slot, offset int, dst []logisim.Node) error {
	if err := nb.checkRange("read", offset, len(dst)); err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	size := uint64(len(dst)) * logisim.NodeSize
	cmd, err := nb.ctx.encode("logisim_read_nodes", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(nb.Slot(slot), nb.staging, []hal.BufferCopy{
			{SrcOffset: uint64(offset) * logisim.NodeSize, DstOffset: 0, Size: size},
		})
	})
	if err != nil {
		return err
	}
	if err := nb.ctx.submit(ctx, cmd); err != nil {
		return fmt.Errorf("read node buffer %d: %w", slot&1, err)
	}
	data, err := mapRead(nb.ctx.device, nb.staging, size)
	if err != nil {
		return fmt.Errorf("read node buffer %d: %w", slot&1, err)
	}
	logisim.DecodeNodes(dst, data)
	return nil
}

// Destroy releases the buffers.
func (nb *NodeBuffers) Destroy() {
	if nb.ctx == nil || nb.ctx.device == nil {
		return
	}
	for i, b := range nb.slots {
		if b != nil {
			nb.ctx.device.DestroyBuffer(b)
			nb.slots[i] = nil
		}
	}
	if nb.staging != nil {
		nb.ctx.device.DestroyBuffer(nb.staging)
		nb.staging = nil
	}
}

// mapRead maps size bytes of a MapRead buffer and returns a copy of them.
func mapRead(device hal.Device, buf hal.Buffer, size uint64) ([]byte, error) {
	m, err := device.MapBuffer(buf, 0, size)
	if err != nil {
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(m.Ptr), size)) //nolint:gosec // mapping covers size bytes
	if err := device.UnmapBuffer(buf); err != nil {
		slogger().Warn("gpu: unmap staging buffer", "err", err)
	}
	return out, nil
}
