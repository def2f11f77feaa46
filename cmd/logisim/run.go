package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gogpu/logisim"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultStripWidth = 80

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Tick the demo circuit and print one state strip per tick",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sim, d, err := newSimulator(cmd)
			if err != nil {
				return err
			}
			defer sim.Close()
			return runStrips(cmd, sim, d, getInt(cmd, "ticks"), cmd.OutOrStdout(), stripWidth())
		},
	}
}

// stripWidth returns the terminal width, or a default when stdout is not a
// terminal.
func stripWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultStripWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultStripWidth
	}
	return w
}

func runStrips(cmd *cobra.Command, sim *logisim.Simulator, d *demo, ticks int, w io.Writer, width int) error {
	nodes, err := sim.Snapshot()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, strip(0, nodes, width))
	for range ticks {
		if err := sim.Tick(cmd.Context()); err != nil {
			return err
		}
		if nodes, err = sim.Snapshot(); err != nil {
			return err
		}
		fmt.Fprintln(w, strip(sim.Ticks(), nodes, width))
	}
	if sim.Ticks() >= uint64(d.settleTicks()) {
		fmt.Fprintf(w, "adder: %d + %d = %d\n", d.a, d.b, d.sum(nodes))
	}
	return nil
}

// strip renders one line: the tick number then one cell per node, skipping
// the reserved node 0, cut to width columns.
func strip(tick uint64, nodes []logisim.Node, width int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%6d ", tick)
	if len(nodes) < 2 {
		return sb.String()
	}
	room := max(width-sb.Len(), 0)
	for i, n := range nodes[1:] {
		if i >= room {
			break
		}
		if n.Level() {
			sb.WriteRune('█')
		} else {
			sb.WriteRune('·')
		}
	}
	return sb.String()
}
