package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gogpu/logisim"
	"github.com/gogpu/logisim/stream"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Tick the demo circuit periodically and stream it over WebSocket",
		Long: "Serve the demo circuit on /ws. Every interval the simulator ticks once and\n" +
			"publishes its logic levels; clients toggle or set nodes with JSON messages.\n" +
			"With --ticks > 0 the server stops after that many ticks.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interval, err := cmd.Flags().GetDuration("interval")
			if err != nil {
				return err
			}
			if interval <= 0 {
				return fmt.Errorf("serve: interval must be positive, got %v", interval)
			}
			sim, _, err := newSimulator(cmd)
			if err != nil {
				return err
			}
			defer sim.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return serve(ctx, sim, getString(cmd, "addr"), interval, getInt(cmd, "ticks"))
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().Duration("interval", 100*time.Millisecond, "time between ticks")
	// serve runs until interrupted unless --ticks is given explicitly.
	cmd.Flags().Int("ticks", 0, "stop after this many ticks (0 = run until interrupted)")
	return cmd
}

func serve(ctx context.Context, sim *logisim.Simulator, addr string, interval time.Duration, limit int) error {
	hub := stream.NewHub(0)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logisim.Logger().Info("serving", "addr", addr, "interval", interval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	loopErr := tickLoop(ctx, sim, hub, interval, limit)

	_ = hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logisim.Logger().Warn("server shutdown", "err", err)
	}
	if err := <-errc; err != nil {
		return err
	}
	return loopErr
}

// tickLoop ticks on every interval, applies pending client commands and
// publishes the new state, until ctx is done or limit ticks have run.
func tickLoop(ctx context.Context, sim *logisim.Simulator, hub *stream.Hub, interval time.Duration, limit int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	publish := func() error {
		nodes, err := sim.Snapshot()
		if err != nil {
			return err
		}
		return hub.Publish(sim.Ticks(), nodes)
	}
	if err := publish(); err != nil {
		return err
	}

	for limit <= 0 || sim.Ticks() < uint64(limit) {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-hub.Commands():
			if err := cmd.Apply(sim); err != nil {
				logisim.Logger().Warn("client command rejected", "kind", cmd.Kind, "addr", cmd.Addr, "err", err)
				continue
			}
			if err := publish(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := sim.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if err := publish(); err != nil {
				return err
			}
		}
	}
	return nil
}
