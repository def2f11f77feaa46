package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/gogpu/logisim"
	"github.com/gogpu/logisim/atlas"
	"github.com/gogpu/logisim/model"
	"github.com/spf13/cobra"
)

var (
	background = logisim.RGBA(0x1e, 0x1e, 0x2e, 0xff)
	lowColor   = logisim.RGBA(0x45, 0x47, 0x5a, 0xff)
	highColor  = logisim.RGBA(0xa6, 0xe3, 0xa1, 0xff)
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Tick the demo circuit and write a PNG of its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sim, d, err := newSimulator(cmd)
			if err != nil {
				return err
			}
			defer sim.Close()

			if err := sim.Run(cmd.Context(), getInt(cmd, "ticks")); err != nil {
				return err
			}
			img, err := renderFrame(cmd.Context(), sim, d, getInt(cmd, "width"), getInt(cmd, "height"))
			if err != nil {
				return err
			}
			out := getString(cmd, "out")
			if err := writePNG(out, img); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d) after %d ticks on %s\n",
				out, img.Rect.Dx(), img.Rect.Dy(), sim.Ticks(), sim.Backend().Name())
			return nil
		},
	}
	cmd.Flags().String("out", "logisim.png", "output PNG file")
	cmd.Flags().Int("width", 1024, "image width in pixels")
	cmd.Flags().Int("height", 640, "image height in pixels")
	return cmd
}

// renderFrame draws the demo from the simulator's current state.
func renderFrame(ctx context.Context, sim *logisim.Simulator, d *demo, w, h int) (*image.RGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("render: invalid size %dx%d", w, h)
	}
	at, err := atlas.Build(atlas.Options{})
	if err != nil {
		return nil, err
	}
	if err := sim.SetAtlas(at.Image); err != nil {
		return nil, err
	}

	b := model.NewBuilder(at.White)
	if err := d.draw(b, at); err != nil {
		return nil, err
	}

	locals := logisim.NewLocals(w, h, fitView(b.Bounds(), w, h), at.Size)
	locals.StateColor = [2]logisim.Color{lowColor, highColor}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bg := background
	if err := sim.Render(ctx, img, b.Mesh(), locals, &bg); err != nil {
		return nil, err
	}
	return img, nil
}

// fitView centers bounds in a w x h screen with a small margin.
func fitView(bounds logisim.Rect, w, h int) logisim.Transform {
	size := bounds.Size()
	if size.X <= 0 || size.Y <= 0 {
		return logisim.IdentityTransform()
	}
	scale := 0.9 * min(float32(w)/size.X, float32(h)/size.Y)
	screen := logisim.V2(float32(w), float32(h))
	offset := screen.Scale(0.5).Sub(bounds.Center().Scale(scale))
	return logisim.Transform{Offset: offset, Scale: scale}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
