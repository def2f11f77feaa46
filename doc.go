// Package logisim is a digital-logic simulator whose node state lives in GPU
// memory and is advanced and drawn there every frame.
//
// # Overview
//
// A circuit is a flat array of [Node] values. Each node is two 32-bit words:
// the top byte of the first word is the node state, every other bit is
// payload owned by the active [Rule]. Two arrays of equal length exist at all
// times. One tick runs the rule over every node, reading only the current
// array and writing only the next one, and then flips which array is current.
//
// The renderer reads the same current array directly. A [Vertex] carries either
// a literal packed RGBA color or the address of a node; node-addressed
// vertices are colored through the two-entry state color table in [Locals].
//
// # Quick Start
//
//	c := logisim.NewCircuit()
//	r := c.Alloc(3)
//	and := c.AddTable(logisim.AndTable())
//	c.SetSource(r.Map(2), logisim.TableSource{Inputs: r.Map(0), Output: 0, Table: and}.Source())
//
//	sim, err := logisim.NewFromCircuit(c)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sim.Close()
//
//	_ = sim.SetLevel(r.Map(0), true)
//	_ = sim.SetLevel(r.Map(1), true)
//	_ = sim.Tick(context.Background())
//
// # Backends
//
// The package ships a CPU [SoftwareBackend]. GPU execution is enabled by a
// blank import:
//
//	import _ "github.com/gogpu/logisim/gpu"
//
// When the GPU backend cannot be created, the simulator falls back to the
// software backend and logs a warning through [Logger].
package logisim
