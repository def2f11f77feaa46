package logisim

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Color is a packed RGBA color with red in the most significant byte:
// 0xRRGGBBAA. Channels are straight (not premultiplied) alpha.
type Color uint32

// Common colors.
const (
	Transparent Color = 0x00000000
	White       Color = 0xFFFFFFFF
	Black       Color = 0x000000FF
	Gray        Color = 0x808080FF
	Red         Color = 0xFF0000FF
	Green       Color = 0x00FF00FF
	Blue        Color = 0x0000FFFF
	Yellow      Color = 0xFFFF00FF
	Cyan        Color = 0x00FFFFFF
	Magenta     Color = 0xFF00FFFF
)

// RGBA packs four 8-bit channels.
func RGBA(r, g, b, a uint8) Color {
	return Color(uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a))
}

// R returns the red channel.
func (c Color) R() uint8 { return uint8(c >> 24) }

// G returns the green channel.
func (c Color) G() uint8 { return uint8(c >> 16) }

// B returns the blue channel.
func (c Color) B() uint8 { return uint8(c >> 8) }

// A returns the alpha channel.
func (c Color) A() uint8 { return uint8(c) }

// Floats unpacks the color into normalized [0,1] channels in RGBA order.
// This is the conversion the renderer applies to literal vertex colors.
func (c Color) Floats() [4]float32 {
	return [4]float32{
		float32(c.R()) / 255,
		float32(c.G()) / 255,
		float32(c.B()) / 255,
		float32(c.A()) / 255,
	}
}

// ColorFromFloats packs normalized channels, rounding to the nearest byte and
// clamping to [0,255]. NaN maps to 0.
func ColorFromFloats(f [4]float32) Color {
	return RGBA(unitToByte(f[0]), unitToByte(f[1]), unitToByte(f[2]), unitToByte(f[3]))
}

func unitToByte(v float32) uint8 {
	x := math.Round(float64(v) * 255)
	switch {
	case math.IsNaN(x) || x <= 0:
		return 0
	case x >= 255:
		return 255
	default:
		return uint8(x)
	}
}

// NRGBA converts to the standard library's non-premultiplied color.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R(), G: c.G(), B: c.B(), A: c.A()}
}

// ColorFromStd converts any standard library color.
func ColorFromStd(c color.Color) Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGBA(n.R, n.G, n.B, n.A)
}

// Hex parses "#RRGGBB" or "#RRGGBBAA" (the leading '#' is optional).
// Six-digit colors are opaque.
func Hex(s string) (Color, error) {
	s = strings.TrimPrefix(s, "#")
	switch len(s) {
	case 6, 8:
	default:
		return 0, fmt.Errorf("logisim: parse color %q: want 6 or 8 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("logisim: parse color %q: %w", s, err)
	}
	if len(s) == 6 {
		v = v<<8 | 0xFF
	}
	return Color(v), nil
}

func (c Color) String() string {
	return fmt.Sprintf("#%08X", uint32(c))
}
