package main

import (
	"fmt"

	"github.com/gogpu/logisim"
	"github.com/gogpu/logisim/atlas"
	"github.com/gogpu/logisim/model"
)

// adderBit holds the nodes of one full adder stage. A, B and Cin are
// consecutive so they address the adder table directly.
type adderBit struct {
	A, B, Cin, Sum, Cout logisim.NodeAddr
}

// demo is a ring oscillator next to a ripple-carry adder.
type demo struct {
	circuit *logisim.Circuit
	ring    logisim.Region
	adder   []adderBit

	// Initial adder operands.
	a, b uint
}

// buildDemo wires a ring of stages inverters and a bits-wide adder summing
// 0b0101... and 0b0011....
func buildDemo(stages, bits int) (*demo, error) {
	if stages < 1 || bits < 1 || bits > 32 {
		return nil, fmt.Errorf("demo: %d stages, %d bits", stages, bits)
	}
	c := logisim.NewCircuit()
	not := c.AddTable(logisim.NotTable())
	fa := c.AddTable(logisim.FullAdderTable())

	d := &demo{circuit: c, ring: c.Alloc(stages)}
	for i := range stages {
		prev := d.ring.Map(logisim.NodeAddr((i + stages - 1) % stages))
		src := logisim.TableSource{Inputs: prev, Table: not}.Source()
		if err := c.SetSource(d.ring.Map(logisim.NodeAddr(i)), src); err != nil {
			return nil, err
		}
	}
	if err := c.SetLevel(d.ring.Min, true); err != nil {
		return nil, err
	}

	mask := uint(1)<<bits - 1
	d.a, d.b = 0x55555555&mask, 0x33333333&mask
	for i := range bits {
		r := c.Alloc(5)
		bit := adderBit{A: r.Map(0), B: r.Map(1), Cin: r.Map(2), Sum: r.Map(3), Cout: r.Map(4)}
		if i > 0 {
			if err := c.SetSource(bit.Cin, logisim.CopyFrom(d.adder[i-1].Cout)); err != nil {
				return nil, err
			}
		}
		sum := logisim.TableSource{Inputs: bit.A, Output: 0, Table: fa}.Source()
		carry := logisim.TableSource{Inputs: bit.A, Output: 1, Table: fa}.Source()
		if err := c.SetSource(bit.Sum, sum); err != nil {
			return nil, err
		}
		if err := c.SetSource(bit.Cout, carry); err != nil {
			return nil, err
		}
		if err := c.SetLevel(bit.A, d.a>>i&1 == 1); err != nil {
			return nil, err
		}
		if err := c.SetLevel(bit.B, d.b>>i&1 == 1); err != nil {
			return nil, err
		}
		d.adder = append(d.adder, bit)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}
	return d, nil
}

// settleTicks is the number of ticks after which the adder output is stable.
func (d *demo) settleTicks() int {
	return 2*len(d.adder) + 1
}

// sum reads the adder result, carry out as the top bit, from a snapshot.
func (d *demo) sum(nodes []logisim.Node) uint {
	var v uint
	for i, bit := range d.adder {
		if nodes[bit.Sum].Level() {
			v |= 1 << i
		}
	}
	if nodes[d.adder[len(d.adder)-1].Cout].Level() {
		v |= 1 << len(d.adder)
	}
	return v
}

// Layout of the drawing, in world units.
const (
	cell       = 48
	lightR     = 12
	wireWidth  = 3
	labelSize  = 14
	circleTess = 24
)

var (
	panelColor = logisim.LiteralColor(logisim.RGBA(0x31, 0x32, 0x44, 0xff))
	edgeColor  = logisim.LiteralColor(logisim.RGBA(0x58, 0x5b, 0x70, 0xff))
	textColor  = logisim.LiteralColor(logisim.RGBA(0xcd, 0xd6, 0xf4, 0xff))
)

// draw adds the demo to b. Lights and wires follow their node's level.
func (d *demo) draw(b *model.Builder, a *atlas.Atlas) error {
	// Ring oscillator: one light per stage, wires chaining them and a
	// feedback curve from the last stage back to the first.
	n := d.ring.Len()
	ringPanel := logisim.RectFromMinSize(logisim.V2(0, 0), logisim.V2(float32(n+1)*cell, 2.5*cell))
	b.RoundedRect(ringPanel, 8, 6, b.White, panelColor)
	b.RoundedRectOutline(ringPanel, 2, 8, 6, edgeColor)
	if _, err := b.Text(a, "ring oscillator", logisim.V2(8, 4), labelSize, textColor); err != nil {
		return err
	}
	y := float32(1.25 * cell)
	for i := range n {
		addr := d.ring.Map(logisim.NodeAddr(i))
		c := logisim.V2(float32(i+1)*cell, y)
		if i+1 < n {
			next := logisim.V2(float32(i+2)*cell, y)
			b.Line([2]logisim.Vec2{c.Add(logisim.V2(lightR, 0)), next.Sub(logisim.V2(lightR, 0))}, wireWidth, b.White, logisim.NodeColor(addr))
		}
		b.Circle(c, lightR, circleTess, logisim.NodeColor(addr))
		b.CircleOutline(c, lightR, 2, circleTess, edgeColor)
	}
	last := d.ring.Map(logisim.NodeAddr(n - 1))
	first := logisim.V2(cell, y+lightR)
	end := logisim.V2(float32(n)*cell, y+lightR)
	b.CubicCurve([4]logisim.Vec2{end, end.Add(logisim.V2(0, cell)), first.Add(logisim.V2(0, cell)), first}, 16, wireWidth, logisim.NodeColor(last))

	// Adder: one column per bit, most significant on the left.
	top := float32(3 * cell)
	bits := len(d.adder)
	adderPanel := logisim.RectFromMinSize(logisim.V2(0, top), logisim.V2(float32(bits+1)*cell, 4*cell))
	b.RoundedRect(adderPanel, 8, 6, b.White, panelColor)
	b.RoundedRectOutline(adderPanel, 2, 8, 6, edgeColor)
	if _, err := b.Text(a, fmt.Sprintf("%d + %d", d.a, d.b), logisim.V2(8, top+4), labelSize, textColor); err != nil {
		return err
	}
	for i, bit := range d.adder {
		x := float32(bits-i) * cell
		for row, addr := range []logisim.NodeAddr{bit.A, bit.B, bit.Sum} {
			c := logisim.V2(x, top+float32(row+1)*cell)
			b.Rect(logisim.RectFromCenterSize(c, logisim.V2(2*lightR, 2*lightR)), b.White, logisim.NodeColor(addr))
			b.RectOutline(logisim.RectFromCenterSize(c, logisim.V2(2*lightR, 2*lightR)), 2, edgeColor)
		}
		if i+1 < bits {
			from := logisim.V2(x-lightR, top+3*cell)
			to := logisim.V2(x-cell+lightR, top+2*cell)
			b.Curve([3]logisim.Vec2{from, logisim.V2(x-cell/2, top+3*cell), to}, 8, wireWidth, logisim.NodeColor(bit.Cout))
		}
	}
	carry := logisim.V2(cell/2, top+3*cell)
	b.Circle(carry, lightR/2, circleTess, logisim.NodeColor(d.adder[bits-1].Cout))
	return nil
}
