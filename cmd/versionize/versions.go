package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeusync/versionize/internal/config"
	"github.com/zeusync/versionize/pkg/version"
)

var errNoVersionMap = errors.New("no version map: pass a file or set --version-map")

func (c *cli) versionsCmd() *cobra.Command {
	var typeName string
	cmd := &cobra.Command{
		Use:   "versions [map.yaml]",
		Short: "Print the version of every type at each umbrella version",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := c.app.Versions
			if len(args) == 1 {
				var err error
				if m, err = (&config.Config{VersionMap: args[0]}).LoadVersionMap(); err != nil {
					return err
				}
			}
			if m == nil {
				return errNoVersionMap
			}
			return printVersions(cmd.OutOrStdout(), m, typeName)
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "only print this type")
	return cmd
}

func printVersions(w io.Writer, m *version.Map, typeName string) error {
	types := m.Types()
	if typeName != "" {
		types = []string{typeName}
	}
	for u := int(version.Initial); u <= int(m.Latest()); u++ {
		pairs := make([]string, len(types))
		for i, name := range types {
			pairs[i] = fmt.Sprintf("%s=%d", name, m.VersionFor(version.Version(u), name))
		}
		if _, err := fmt.Fprintf(w, "%d\t%s\n", u, strings.Join(pairs, " ")); err != nil {
			return err
		}
	}
	return nil
}
