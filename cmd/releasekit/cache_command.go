package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"releasekit/internal/jobcache"
	"releasekit/internal/logging"
	"releasekit/internal/staging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage cached job results",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached job results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store := jobcache.New(ctx.jobCacheDir(cfg), logger)
			entries, err := store.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No cached job results")
			} else {
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.Job,
						fmt.Sprint(e.Lines),
						humanize.IBytes(uint64(e.Size)),
						humanize.Time(e.ModTime),
						e.File,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Job", "Lines", "Size", "Updated", "File"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
			}

			if dirs, err := staging.List(screenshotRoot(cfg)); err == nil && len(dirs) > 0 {
				var size int64
				for _, d := range dirs {
					size += d.Size
				}
				fmt.Fprintf(out, "Screenshots: %d releases, %s (%s)\n", len(dirs), humanize.IBytes(uint64(size)), screenshotRoot(cfg))
			}

			httpPath := ctx.httpCachePath(cfg)
			if _, err := os.Stat(httpPath); err != nil {
				return nil
			}
			httpStore, err := ctx.openHTTPCache(cfg, logger)
			if err != nil {
				return err
			}
			defer httpStore.Close()
			count, err := httpStore.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "HTTP cache: %d responses (%s)\n", count, httpPath)
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var jobsOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached job results and HTTP responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			removed, err := jobcache.New(ctx.jobCacheDir(cfg), logger).Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %d cached job results\n", removed)
			if jobsOnly {
				return nil
			}

			httpStore, err := ctx.openHTTPCache(cfg, logger)
			if err != nil {
				return err
			}
			defer httpStore.Close()
			cleared, err := httpStore.Clear(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("http cache cleared", logging.Int64("removed", cleared))
			fmt.Fprintf(out, "Removed %d cached HTTP responses\n", cleared)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jobsOnly, "jobs-only", false, "Keep cached HTTP responses")
	return cmd
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old screenshots and expired HTTP responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			result := staging.CleanStale(cmd.Context(), screenshotRoot(cfg), olderThan, logger)
			fmt.Fprintf(out, "Removed %d screenshot directories (%s)\n", len(result.Removed), humanize.IBytes(uint64(result.Freed)))
			for _, failure := range result.Errors {
				fmt.Fprintf(out, "  could not remove %s: %v\n", failure.Path, failure.Error)
			}

			httpStore, err := ctx.openHTTPCache(cfg, logger)
			if err != nil {
				return err
			}
			defer httpStore.Close()
			purged, err := httpStore.Purge(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %d expired HTTP responses\n", purged)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age after which entries are removed")
	return cmd
}
