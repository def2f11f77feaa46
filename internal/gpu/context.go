//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// pollInterval is how often a pending submission is checked for completion.
const pollInterval = 100 * time.Microsecond

// ErrNoAdapter is returned when no GPU adapter can be opened.
var ErrNoAdapter = errors.New("gpu: no usable adapter")

// Context holds a device and its queue.
//
// A context either owns its device (OpenContext) or borrows one from a host
// application (NewContext, ContextFromProvider); Destroy only releases what
// it owns. Context methods are not safe for concurrent use; the backend
// serializes them.
type Context struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string
	external bool

	// inflight is the last submission that may still be running.
	inflight uint64
}

// OpenContext opens a device on the Vulkan backend, preferring a discrete or
// integrated GPU.
func OpenContext() (*Context, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("vulkan backend not available: %w", ErrNoAdapter)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("no GPU adapters found: %w", ErrNoAdapter)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}
	slogger().Info("gpu: adapter selected", "name", selected.Info.Name, "type", selected.Info.DeviceType)
	return &Context{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		adapter:  selected.Info.Name,
	}, nil
}

// NewContext wraps a device and queue owned by the caller.
func NewContext(device hal.Device, queue hal.Queue) *Context {
	return &Context{device: device, queue: queue, external: true}
}

// ContextFromProvider adopts the HAL device of a host application. The
// provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func ContextFromProvider(provider any) (*Context, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("gpu: provider %T does not expose HAL types", provider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}
	return NewContext(device, queue), nil
}

// Device returns the HAL device.
func (c *Context) Device() hal.Device { return c.device }

// Queue returns the HAL queue.
func (c *Context) Queue() hal.Queue { return c.queue }

// External reports whether the device belongs to someone else.
func (c *Context) External() bool { return c.external }

// AdapterName returns the name of the opened adapter, empty for shared devices.
func (c *Context) AdapterName() string { return c.adapter }

// submit submits one command buffer and waits until the queue reports it
// complete or ctx is done. The command buffer is freed either way.
//
// If ctx ends first the submission stays in flight and the next submit
// waits for it before queueing more work.
func (c *Context) submit(ctx context.Context, cmd hal.CommandBuffer) error {
	defer c.device.FreeCommandBuffer(cmd)
	if err := c.drain(ctx); err != nil {
		return err
	}
	idx, err := c.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	c.inflight = idx
	return c.drain(ctx)
}

// drain waits for the in-flight submission.
func (c *Context) drain(ctx context.Context) error {
	if c.inflight == 0 || c.queue.PollCompleted() >= c.inflight {
		c.inflight = 0
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for c.queue.PollCompleted() < c.inflight {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for submission %d: %w", c.inflight, ctx.Err())
		case <-ticker.C:
		}
	}
	c.inflight = 0
	return nil
}

// encode records commands with fn into a fresh encoder and returns the
// finished command buffer.
func (c *Context) encode(label string, fn func(hal.CommandEncoder)) (hal.CommandBuffer, error) {
	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	fn(encoder)
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	return cmd, nil
}

// Destroy waits for outstanding work and releases an owned device.
func (c *Context) Destroy() {
	if c.device == nil {
		return
	}
	if err := c.device.WaitIdle(); err != nil {
		slogger().Warn("gpu: wait idle on destroy", "err", err)
	}
	if !c.external {
		c.device.Destroy()
		if c.instance != nil {
			c.instance.Destroy()
		}
	}
	c.device = nil
	c.queue = nil
	c.instance = nil
}
