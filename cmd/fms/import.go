package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teesmad/findmyspot/internal/seed"
	"github.com/teesmad/findmyspot/internal/ui"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		format string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:     "import FILE",
		GroupID: "spots",
		Short:   "Import spots from a JSONL or YAML seed file",
		Long: `Import spots from a seed file. Each spot is added through the sync
engine, so it reaches the remote store before the local cache.

Formats are detected from the extension (.jsonl, .ndjson, .yaml, .yml)
unless --format is given. Invalid entries are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			e, err := a.openEngine(ctx, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.syncer.Start(ctx); err != nil {
				return err
			}

			result, err := seed.Import(ctx, e.syncer, seed.Options{
				Path:   args[0],
				Format: seed.Format(format),
				DryRun: dryRun,
			})
			if err != nil {
				return err
			}

			verb := "Imported"
			if dryRun {
				verb = "Would import"
			}
			fmt.Fprintf(out, "%s %s %d spots in %v\n", ui.RenderPass("✓"), verb, result.Imported, result.Duration.Round(time.Millisecond))
			if result.Skipped > 0 {
				fmt.Fprintf(out, "%s Skipped %d:\n", ui.RenderWarn("⚠"), result.Skipped)
				for _, msg := range result.Errors {
					fmt.Fprintf(out, "   %s\n", msg)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Seed format: jsonl or yaml (default: from extension)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate without writing")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:     "export [FILE]",
		GroupID: "spots",
		Short:   "Export spots as JSONL (stdout by default)",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, done, err := a.snapshot(cmd, offline)
			if err != nil {
				return err
			}
			defer done()

			var w io.Writer = cmd.OutOrStdout()
			if len(args) == 1 {
				// #nosec G304 - controlled path from CLI
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", args[0], err)
				}
				defer f.Close()
				w = f
			}

			spots := reg.Current()
			if err := seed.WriteJSONL(w, spots); err != nil {
				return err
			}
			if len(args) == 1 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Exported %d spots to %s\n", ui.RenderPass("✓"), len(spots), args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Read the local cache only")
	return cmd
}
