package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/teesmad/findmyspot/internal/config"
	"github.com/teesmad/findmyspot/internal/ui"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		GroupID: "setup",
		Short:   "Create or show configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write a default fms.toml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "fms.toml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", ui.RenderPass("✓"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if a.cfg.File != "" {
				fmt.Fprintf(out, "# from %s\n", a.cfg.File)
			}
			return toml.NewEncoder(out).Encode(a.cfg.Redacted().Settings())
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
