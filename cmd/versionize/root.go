package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeusync/versionize/internal/config"
	"github.com/zeusync/versionize/internal/core/schema/registry"
	"github.com/zeusync/versionize/internal/injector"
)

const Version = "0.3.0"

// cli holds what PersistentPreRunE builds for the subcommands.
type cli struct {
	app *injector.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "versionize",
		Short: "inspect versioned snapshots and version maps",
		Long: fmt.Sprintf(`versionize (v%s)

Tooling for payloads written by the versionize serialization core:
read snapshot headers and resolve umbrella version maps.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}
	config.SetupFlags(root)

	root.AddCommand(
		c.inspectCmd(),
		c.versionsCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of versionize",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "versionize v%s\n", Version)
			},
		},
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv("."); err != nil {
		return err
	}
	v, err := config.New(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	// The CLI works on envelopes and maps only; no Go types are registered.
	c.app, err = injector.InitializeApp(cfg, registry.New())
	return err
}
