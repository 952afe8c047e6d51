package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/teesmad/findmyspot/internal/cache"
	"github.com/teesmad/findmyspot/internal/loadtest"
	"github.com/teesmad/findmyspot/internal/remote"
	"github.com/teesmad/findmyspot/internal/spotsync"
	"github.com/teesmad/findmyspot/internal/ui"
)

func newBenchCmd(a *app) *cobra.Command {
	opts := loadtest.DefaultOptions()
	var (
		latency time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:     "bench",
		GroupID: "sync",
		Short:   "Load test the sync engine against an in-memory remote",
		Long: `Run concurrent writers and readers against a throwaway engine.

The engine uses a temporary cache and an in-memory remote store, so the
configured cache and remote are never touched. Use --latency to simulate
a slow remote.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			dir, err := os.MkdirTemp("", "fms-bench-")
			if err != nil {
				return fmt.Errorf("failed to create temp dir: %w", err)
			}
			defer os.RemoveAll(dir)

			db, err := cache.Open(filepath.Join(dir, "cache.db"))
			if err != nil {
				return fmt.Errorf("failed to open cache: %w", err)
			}
			defer db.Close()

			mem := remote.NewMemory()
			mem.SetLatency(latency)
			defer mem.Close()

			s := spotsync.New(spotsync.Config{
				Cache:            db,
				Remote:           mem,
				Logger:           a.logs.Logger("sync"),
				RemoteTimeout:    a.cfg.Remote.Timeout,
				ResyncMaxElapsed: a.cfg.Sync.ResyncMaxElapsed,
			})
			if err := s.Start(ctx); err != nil {
				return err
			}
			defer s.Stop()

			if !asJSON {
				fmt.Fprintf(out, "%s Running %d writers x %d writes, %d readers...\n",
					ui.RenderAccent("▶"), opts.Writers, opts.WritesPerWriter, opts.Readers)
			}

			result, runErr := loadtest.Run(ctx, s, opts)
			if result == nil {
				return runErr
			}
			if asJSON {
				if err := writeJSON(out, result); err != nil {
					return err
				}
				return runErr
			}

			printBench(cmd, result)
			if runErr != nil {
				return runErr
			}
			fmt.Fprintf(out, "\n%s No inconsistent snapshots observed\n", ui.RenderPass("✓"))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Writers, "writers", opts.Writers, "Concurrent writers")
	f.IntVar(&opts.WritesPerWriter, "writes", opts.WritesPerWriter, "Writes per writer")
	f.IntVar(&opts.Readers, "readers", opts.Readers, "Concurrent readers")
	f.Int64Var(&opts.Seed, "seed", opts.Seed, "Seed for generated spots")
	f.DurationVar(&latency, "latency", 0, "Simulated remote latency per call")
	f.BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printBench(cmd *cobra.Command, r *loadtest.Result) {
	out := cmd.OutOrStdout()
	row := func(label string, s loadtest.LatencyStats) {
		fmt.Fprintf(out, "  %-7s ops=%d errors=%d min=%s p50=%s p95=%s p99=%s max=%s\n",
			label, s.Ops, s.Errors,
			loadtest.FormatDuration(s.Min), loadtest.FormatDuration(s.P50),
			loadtest.FormatDuration(s.P95), loadtest.FormatDuration(s.P99),
			loadtest.FormatDuration(s.Max))
	}

	fmt.Fprintf(out, "\n%s\n", ui.RenderBold("Latency"))
	row("writes", r.Writes)
	row("reads", r.Reads)

	fmt.Fprintf(out, "\n%s\n", ui.RenderBold("Totals"))
	fmt.Fprintf(out, "  Elapsed:     %s\n", loadtest.FormatDuration(r.Elapsed))
	fmt.Fprintf(out, "  Writes/sec:  %.1f\n", r.WritesPerSecond)
	fmt.Fprintf(out, "  Spots:       %d (version %d)\n", r.Spots, r.Version)
	if r.MemDelta > 0 {
		fmt.Fprintf(out, "  Heap delta:  %s\n", ui.FormatBytes(r.MemDelta))
	}
	if r.Writes.Errors > 0 {
		fmt.Fprintf(out, "\n%s %d writes failed\n", ui.RenderWarn("⚠"), r.Writes.Errors)
	}
}
