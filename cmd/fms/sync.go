package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/teesmad/findmyspot/internal/cache"
	"github.com/teesmad/findmyspot/internal/config"
	"github.com/teesmad/findmyspot/internal/ui"
)

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Full sync from the remote store to the local cache",
		Long: `Fetch every spot from the remote store and replace the local cache.

Invalid remote documents are skipped and counted. If the remote store is
unreachable the command fails and the cache is left as it was.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			e, err := a.openEngine(ctx, nil)
			if err != nil {
				return err
			}
			defer e.Close()

			fmt.Fprintf(out, "%s Syncing from %s remote...\n", ui.RenderAccent("↻"), a.cfg.Remote.Kind)
			start := time.Now()

			if err := e.syncer.Start(ctx); err != nil {
				return err
			}
			if err := e.syncer.Resync(ctx); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			st := e.syncer.Stats()
			fmt.Fprintf(out, "%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(out, "   Spots: %d\n", st.Spots)
			if st.Invalid > 0 {
				fmt.Fprintf(out, "   Invalid: %s\n", ui.RenderWarn(fmt.Sprint(st.Invalid)))
			}
			fmt.Fprintf(out, "   Cache: %s\n", e.cache.Path())
			return nil
		},
	}
}

// cacheStatus is the status command's JSON shape.
type cacheStatus struct {
	Path          string    `json:"path"`
	Exists        bool      `json:"exists"`
	SizeBytes     int64     `json:"size_bytes,omitempty"`
	Spots         int       `json:"spots"`
	SchemaVersion int       `json:"schema_version,omitempty"`
	JournalMode   string    `json:"journal_mode,omitempty"`
	Modified      time.Time `json:"modified,omitempty"`
	Remote        string    `json:"remote"`
	RemoteTarget  string    `json:"remote_target,omitempty"`
	Identity      string    `json:"identity"`
}

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: "sync",
		Short:   "Show local cache status",
		Long: `Display the state of the local cache without contacting the remote store.

Shows:
  - Cache file location and size
  - Number of cached spots, schema version and journal mode
  - Configured remote store`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := readCacheStatus(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, st)
			}

			if !st.Exists {
				fmt.Fprintf(out, "\n%s Cache not initialized\n", ui.RenderWarn("⚠"))
				fmt.Fprintf(out, "   Run 'fms sync' to create the cache\n\n")
				return nil
			}

			fmt.Fprintf(out, "\n%s Cache Status\n\n", ui.RenderAccent("●"))
			fmt.Fprintf(out, "Location: %s\n", st.Path)
			fmt.Fprintf(out, "Size: %s\n", ui.FormatBytes(st.SizeBytes))
			fmt.Fprintf(out, "Spots: %d\n", st.Spots)
			fmt.Fprintf(out, "Schema: v%d (%s)\n", st.SchemaVersion, st.JournalMode)
			fmt.Fprintf(out, "Modified: %s\n", st.Modified.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Remote: %s %s\n", st.Remote, ui.RenderMuted(st.RemoteTarget))
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func readCacheStatus(ctx context.Context, cfg *config.Config) (*cacheStatus, error) {
	st := &cacheStatus{
		Path:         cfg.Cache.Path,
		Remote:       cfg.Remote.Kind,
		RemoteTarget: remoteTarget(cfg),
		Identity:     cfg.Identity,
	}

	info, err := os.Stat(cfg.Cache.Path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check cache: %w", err)
	}
	st.Exists = true
	st.SizeBytes = info.Size()
	st.Modified = info.ModTime()

	db, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	defer db.Close()

	if st.Spots, err = db.CountContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to count spots: %w", err)
	}
	if st.SchemaVersion, err = db.SchemaVersionContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	if err := db.RawDB().QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&st.JournalMode); err != nil {
		return nil, fmt.Errorf("failed to read journal mode: %w", err)
	}
	return st, nil
}

// remoteTarget describes where the remote store lives, without secrets.
func remoteTarget(cfg *config.Config) string {
	switch cfg.Remote.Kind {
	case config.RemoteFile:
		return cfg.Remote.Dir
	case config.RemoteLibSQL, config.RemotePostgres:
		return config.RedactURL(cfg.Remote.URL)
	default:
		return ""
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
