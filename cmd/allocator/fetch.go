package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"IPOAllocator/internal/collector"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the current IPO snapshot to a file",
	RunE:  runFetch,
}

var fetchOut string

func init() {
	fetchCmd.Flags().StringVar(&fetchOut, "out", "", "Output file (defaults to source.snapshot_file)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfg, l, err := setup()
	if err != nil {
		return err
	}
	if cfg.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required for fetch")
	}
	out := fetchOut
	if out == "" {
		out = cfg.Source.SnapshotFile
	}

	src := collector.NewHTTPSource(cfg.Source.BaseURL, cfg.Source.APIKey, cfg.Proxy)
	snap, err := src.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	if err := collector.WriteSnapshot(out, snap); err != nil {
		return err
	}
	l.Info().Str("path", out).Int("records", len(snap.Records)).Msg("snapshot written")
	return nil
}
