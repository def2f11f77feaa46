//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// Embedded WGSL shader sources.

//go:embed shaders/tick_identity.wgsl
var tickIdentityShaderSource string

//go:embed shaders/tick_netlist.wgsl
var tickNetlistShaderSource string

//go:embed shaders/node_render.wgsl
var nodeRenderShaderSource string

// ShaderSources returns the embedded WGSL sources by label.
func ShaderSources() map[string]string {
	return map[string]string{
		"tick_identity": tickIdentityShaderSource,
		"tick_netlist":  tickNetlistShaderSource,
		"node_render":   nodeRenderShaderSource,
	}
}

// compileSPIRV compiles WGSL to SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, err
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("spir-v size %d is not word aligned", len(spirv))
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	return words, nil
}

// shaderSource prefers SPIR-V from naga and falls back to handing the WGSL
// to the HAL.
func shaderSource(label, src string) hal.ShaderSource {
	words, err := compileSPIRV(src)
	if err != nil {
		slogger().Warn("gpu: naga compile failed, passing WGSL to driver", "shader", label, "err", err)
		return hal.ShaderSource{WGSL: src}
	}
	slogger().Debug("gpu: shader compiled", "shader", label, "words", len(words))
	return hal.ShaderSource{SPIRV: words}
}

func createShaderModule(device hal.Device, label, src string) (hal.ShaderModule, error) {
	m, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: shaderSource(label, src),
	})
	if err != nil {
		return nil, fmt.Errorf("create %s shader: %w", label, err)
	}
	return m, nil
}
