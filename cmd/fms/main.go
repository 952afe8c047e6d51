// Command fms syncs parking spots between a remote store and a local cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teesmad/findmyspot/internal/config"
	"github.com/teesmad/findmyspot/internal/logging"
)

// app holds state shared by every command of one invocation.
type app struct {
	configFile string
	envFile    string

	cfg  *config.Config
	logs *logging.Factory
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "fms",
		Short: "Parking spot sync engine, cache and dashboard",
		Long: `fms keeps a local cache of parking spots in step with a remote store.

Every write goes to the remote store first; the local cache and the
published snapshot change only after the store acknowledges it.

Remote stores:
  file      a directory of <id>.json documents (default: ./spots)
  libsql    a Turso/libSQL database (libsql://, https:// or file:)
  postgres  a PostgreSQL database
  memory    an in-process store, for trying things out`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logs != nil {
				_ = a.logs.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Config file (default: fms.toml in . or the user config dir)")
	pf.StringVar(&a.envFile, "env-file", ".env", "Dotenv file to load")
	pf.String("cache", "", "Local cache database path")
	pf.String("remote", "", "Remote store kind: file, libsql, postgres or memory")
	pf.String("remote-dir", "", "Spots directory for the file remote")
	pf.String("remote-url", "", "Database URL for the libsql and postgres remotes")
	pf.String("identity", "", "Identity reported in logs and dashboard responses")
	pf.String("log-file", "", "Also write logs to this file (rotated)")
	pf.BoolP("verbose", "v", false, "Show engine logs")

	root.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "spots", Title: "Spots:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	root.AddCommand(
		newSyncCmd(a),
		newStatusCmd(a),
		newServeCmd(a),
		newBenchCmd(a),
		newSpotsCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup resolves configuration and logging before any command runs.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.Options{
		ConfigFile: a.configFile,
		EnvFile:    a.envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg

	logs, err := logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Quiet:      !cfg.Log.Verbose && cmd.Annotations[annotationLogs] != "always",
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	a.logs = logs
	return nil
}

// annotationLogs set to "always" keeps engine logs on without --verbose.
const annotationLogs = "logs"
