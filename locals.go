package logisim

import (
	"encoding/binary"
	"math"
)

// LocalsSize is the size of the encoded Locals uniform in bytes.
const LocalsSize = 32

// Locals is the per-frame uniform block of the renderer.
//
// StateColor[0] colors node-addressed vertices whose node is low,
// StateColor[1] those whose node is high.
type Locals struct {
	StateColor   [2]Color
	ScreenSize   Vec2
	GlobalOffset Vec2
	GlobalScale  float32
	TextureSize  uint32
}

// NewLocals builds the uniform for a frame of the given screen size viewed
// through view. State colors default to black (low) and white (high).
func NewLocals(screenW, screenH int, view Transform, textureSize uint32) Locals {
	return Locals{
		StateColor:   [2]Color{Black, White},
		ScreenSize:   Vec2{float32(screenW), float32(screenH)},
		GlobalOffset: view.Offset,
		GlobalScale:  view.Scale,
		TextureSize:  textureSize,
	}
}

// View returns the global transform carried by the uniform.
func (l *Locals) View() Transform {
	return Transform{Offset: l.GlobalOffset, Scale: l.GlobalScale}
}

// Bytes encodes the uniform in WGSL uniform layout:
//
//	0  state_color   vec2<u32>
//	8  screen_size   vec2<f32>
//	16 global_offset vec2<f32>
//	24 global_scale  f32
//	28 texture_size  u32
func (l *Locals) Bytes() []byte {
	b := make([]byte, LocalsSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(l.StateColor[0]))
	binary.LittleEndian.PutUint32(b[4:], uint32(l.StateColor[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(l.ScreenSize.X))
	binary.LittleEndian.PutUint32(b[12:], math.Float32bits(l.ScreenSize.Y))
	binary.LittleEndian.PutUint32(b[16:], math.Float32bits(l.GlobalOffset.X))
	binary.LittleEndian.PutUint32(b[20:], math.Float32bits(l.GlobalOffset.Y))
	binary.LittleEndian.PutUint32(b[24:], math.Float32bits(l.GlobalScale))
	binary.LittleEndian.PutUint32(b[28:], l.TextureSize)
	return b
}

// Selector returns the state color index for a node: its logic level bit.
// The shader computes the same value as (word0 >> 24) & 1.
func Selector(n Node) uint32 {
	return n.Word0 >> stateShift & 1
}
