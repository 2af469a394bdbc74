package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hoangsonww/ed2k/internal/cache"
)

func newCacheCmd(opts *options, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the digest cache",
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove entries for missing, changed or expired files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, opts, stderr, func(store *cache.Store, retentionDays int) error {
				stats, err := cache.NewCollector(store, retentionDays).Run()
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "pruned %d of %d entries (missing %d, stale %d, expired %d, corrupt %d)\n",
					stats.Removed(), stats.Scanned, stats.Missing, stats.Stale, stats.Expired, stats.Corrupt)
				if stats.Failures > 0 {
					return fmt.Errorf("failed to delete %d entries", stats.Failures)
				}
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, opts, stderr, func(store *cache.Store, _ int) error {
				n, err := store.Clear()
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "removed %d entries\n", n)
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, opts, stderr, func(store *cache.Store, _ int) error {
				entries, err := store.List()
				if err != nil {
					return err
				}
				for _, e := range entries {
					if e.Path == "" {
						fmt.Fprintf(stdout, "corrupt entry %s\n", e.Key)
						continue
					}
					fmt.Fprintf(stdout, "%s  %-7s %12d  %s\n", e.Digest, e.Mode, e.Size, e.Path)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(pruneCmd, clearCmd, listCmd)
	return cmd
}

func withCache(cmd *cobra.Command, opts *options, stderr io.Writer, fn func(*cache.Store, int) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	setupLogger(cfg, stderr)

	store, db, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(store, cfg.Cache.RetentionDays)
}
