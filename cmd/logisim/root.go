package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/gogpu/logisim"
	"github.com/spf13/cobra"
)

// Default demo size.
const (
	ringStages = 5
	adderBits  = 4
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "logisim",
		Short:        "GPU logic circuit simulator",
		Long:         "Simulate a demo logic circuit on the GPU (or CPU), print its state, render it to PNG, or stream it over WebSocket.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if getBool(cmd, "verbose") {
				logisim.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}
		},
	}
	root.PersistentFlags().String("backend", "", "simulation backend ("+backendList()+"); empty selects the best available")
	root.PersistentFlags().Int("workers", 0, "software backend worker count (0 = GOMAXPROCS)")
	root.PersistentFlags().Int("ticks", 32, "number of ticks to simulate")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd(), newRenderCmd(), newServeCmd())
	return root
}

func backendList() string {
	return strings.Join(logisim.Backends(), ", ")
}

// newSimulator builds the demo circuit and a simulator for it configured
// from the persistent flags.
func newSimulator(cmd *cobra.Command) (*logisim.Simulator, *demo, error) {
	d, err := buildDemo(ringStages, adderBits)
	if err != nil {
		return nil, nil, err
	}
	opts := []logisim.Option{logisim.WithWorkers(getInt(cmd, "workers"))}
	if name := getString(cmd, "backend"); name != "" {
		opts = append(opts, logisim.WithBackend(name))
	}
	sim, err := logisim.NewFromCircuit(d.circuit, opts...)
	if err != nil {
		return nil, nil, err
	}
	logisim.Logger().Info("simulator ready", "backend", sim.Backend().Name(), "nodes", sim.Len(), "grid", sim.Grid().String())
	return sim, d, nil
}

// Flag getters. Flags are registered by this package, so lookups only fail
// on programmer error.
func getBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(err)
	}
	return v
}

func getInt(cmd *cobra.Command, name string) int {
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(err)
	}
	return v
}

func getString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(err)
	}
	return v
}
