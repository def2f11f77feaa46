//go:build !nogpu

// Package gpu registers the WebGPU backend for logisim.
//
// Import this package to run the update kernel and the circuit renderer on
// the GPU. The backend opens a Vulkan device when the simulator is created;
// if that fails (no driver, no adapter) the simulator logs a warning and
// runs on the software backend instead.
//
// Usage:
//
//	import _ "github.com/gogpu/logisim/gpu" // enable GPU execution
//
// Host applications that already own a device can share it:
//
//	b, err := gpu.NewSharedBackend(provider)
//	sim, err := logisim.New(nodes, logisim.WithBackendInstance(b))
package gpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/logisim"
	gpuimpl "github.com/gogpu/logisim/internal/gpu"
)

// DeviceHandle provides GPU device access from the host application.
//
// It is an alias for gpucontext.DeviceProvider. Providers passed to
// NewSharedBackend must additionally expose HalDevice() any and
// HalQueue() any returning the wgpu HAL device and queue.
type DeviceHandle = gpucontext.DeviceProvider

// Name is the registry name of the GPU backend.
const Name = "wgpu"

func init() {
	logisim.RegisterBackend(Name, func() logisim.Backend { return gpuimpl.New() })
}

// NewSharedBackend returns an initialized GPU backend running on the host's
// device. The device is not destroyed when the backend closes.
func NewSharedBackend(provider any) (logisim.Backend, error) {
	b := gpuimpl.New()
	if err := b.SetDeviceProvider(provider); err != nil {
		return nil, fmt.Errorf("logisim/gpu: shared device: %w", err)
	}
	if err := b.Init(); err != nil {
		return nil, err
	}
	b.SetLogger(logisim.Logger())
	return b, nil
}
