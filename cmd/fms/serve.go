package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/teesmad/findmyspot/internal/daemon"
	"github.com/teesmad/findmyspot/internal/dashboard"
	"github.com/teesmad/findmyspot/internal/ui"
)

func newServeCmd(a *app) *cobra.Command {
	var noDashboard bool

	cmd := &cobra.Command{
		Use:         "serve",
		GroupID:     "sync",
		Short:       "Run the sync daemon and dashboard (foreground)",
		Annotations: map[string]string{annotationLogs: "always"},
		Long: `Run the sync engine as a long-lived process.

The daemon will:
  1. Publish the cached spots, then subscribe to the remote store
  2. Force a full resync every sync.resync_interval
  3. Serve the dashboard: REST API, WebSocket feed, /health and /metrics

Endpoints:
  GET    /api/spots[?lat=&lon=&radius_km=]
  GET    /api/spots/:id
  POST   /api/spots
  PUT    /api/spots/:id
  DELETE /api/spots/:id
  POST   /api/resync
  GET    /ws`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			e, err := a.openEngine(ctx, reg)
			if err != nil {
				return err
			}
			defer e.Close()

			dc := &daemon.Config{
				ResyncInterval: a.cfg.Sync.ResyncInterval,
				Logger:         a.logs.Logger("daemon"),
			}
			if !noDashboard {
				dc.Dashboard = &dashboard.Config{
					Port:     a.cfg.Dashboard.Port,
					Metrics:  reg,
					Identity: a.cfg.Identity,
					Logger:   a.logs.Logger("dashboard"),
				}
			}

			d, err := daemon.NewWithConfig(e.syncer, dc)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%s Starting fms daemon...\n", ui.RenderAccent("▶"))
			fmt.Fprintf(out, "   Remote: %s %s\n", a.cfg.Remote.Kind, remoteTarget(a.cfg))
			fmt.Fprintf(out, "   Cache: %s\n", a.cfg.Cache.Path)

			go func() {
				select {
				case <-d.Started():
				case <-ctx.Done():
					return
				}
				if dash := d.Dashboard(); dash != nil {
					fmt.Fprintf(out, "   Dashboard: http://%s\n", dash.GetAddr())
					fmt.Fprintf(out, "   WebSocket: ws://%s/ws\n", dash.GetAddr())
				}
				fmt.Fprintf(out, "\nPress Ctrl+C to stop\n\n")
			}()

			if err := d.Start(ctx); err != nil {
				return fmt.Errorf("daemon stopped with error: %w", err)
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "Dashboard port")
	cmd.Flags().Duration("resync", 0, "Periodic full resync interval (0 keeps the configured value)")
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "Run without the dashboard")
	return cmd
}
