//go:build !nogpu

// Package gpu runs the logisim update kernel and circuit renderer on a
// WebGPU device through the gogpu/wgpu HAL (pure Go, zero CGO).
//
// This is an internal package. Applications enable it with a blank import of
// github.com/gogpu/logisim/gpu, which registers the "wgpu" backend.
//
// # Architecture
//
//	Context       device and queue, owned or shared with a host application
//	NodeBuffers   the two node storage buffers plus a MapRead staging buffer
//	TickKernel    compute pipelines for the identity and netlist rules
//	NodeRenderer  render pipeline drawing the circuit mesh offscreen
//	atlasTexture  RGBA8 atlas texture, view and sampler
//
// A tick binds one node buffer read-only as current and the other read_write
// as next, dispatches one 8x8 workgroup per tile of the dispatch grid, and
// waits for the submission to complete before returning. The renderer binds
// the current buffer read-only in its vertex stage.
//
// # Shaders
//
// WGSL sources are embedded with go:embed and compiled to SPIR-V with
// gogpu/naga. If naga rejects a shader the WGSL is handed to the HAL as is.
//
// # Build tags
//
// Building with -tags nogpu excludes this package.
package gpu
