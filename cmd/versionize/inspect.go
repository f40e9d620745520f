package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeusync/versionize/internal/core/observability/log"
	"github.com/zeusync/versionize/internal/core/snapshot"
)

func (c *cli) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <snapshot>...",
		Short: "Print snapshot headers and verify their checksums",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, path := range args {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				if err := c.inspect(cmd.OutOrStdout(), path); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			return nil
		},
	}
}

func (c *cli) inspect(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h, err := snapshot.Inspect(f)
	if err != nil {
		c.app.Logger.Debug("Snapshot rejected", log.String("path", path), log.Error(err))
		return err
	}
	c.app.Logger.Debug("Snapshot inspected", log.String("path", path), log.String("type", h.Type))

	rows := []struct {
		key string
		val any
	}{
		{"file", path},
		{"id", h.ID},
		{"type", h.Type},
		{"mode", h.Mode},
		{"version", h.Version},
		{"codec", h.Codec},
		{"compression", h.Compression},
		{"checksum", h.Checksum},
		{"digest", h.Digest},
		{"fingerprint", fmt.Sprintf("%016x", h.Fingerprint)},
		{"raw size", h.RawSize},
		{"body size", h.BodySize},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%-12s %v\n", r.key+":", r.val); err != nil {
			return err
		}
	}
	return nil
}
