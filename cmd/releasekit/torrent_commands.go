package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"releasekit/internal/config"
	"releasekit/internal/job"
	"releasekit/internal/jobs/addtorrent"
)

func newTorrentCommand(ctx *commandContext) *cobra.Command {
	torrentCmd := &cobra.Command{
		Use:   "torrent",
		Short: "Create torrents and hand them to the BitTorrent client",
	}

	torrentCmd.AddCommand(newTorrentCreateCommand(ctx))
	torrentCmd.AddCommand(newTorrentAddCommand(ctx))

	return torrentCmd
}

func newTorrentCreateCommand(ctx *commandContext) *cobra.Command {
	var trackerName string
	var add bool

	cmd := &cobra.Command{
		Use:   "create <content>",
		Short: "Hash a file or directory into a .torrent",
		Long: `Hash a file or directory into a .torrent in the configured torrent_dir.

With --tracker the tracker's announce URL, source, private flag and exclude
patterns are applied and the file name carries the tracker name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var tracker config.Tracker
			trackerName = strings.ToLower(strings.TrimSpace(trackerName))
			if trackerName != "" {
				if tracker, err = lookupTracker(cfg, trackerName); err != nil {
					return err
				}
			}
			content, err := filepath.Abs(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve content path: %w", err)
			}

			runCtx, logger, err := ctx.runContext(cmd)
			if err != nil {
				return err
			}
			base := ctx.jobOptions(cfg, logger)
			torrentJ, err := torrentJob(base, cfg, content, trackerName, tracker)
			if err != nil {
				return err
			}
			jobs := []*job.Job{torrentJ}
			if add {
				addJ, err := addtorrent.New(base, addtorrent.Options{WatchDir: cfg.Client.WatchDir})
				if err != nil {
					return err
				}
				if err := pipeJobs(torrentJ, addJ); err != nil {
					return err
				}
				jobs = []*job.Job{addJ, torrentJ}
			}
			_, err = runJobs(runCtx, cmd, cfg, logger, jobs, runOptions{})
			return err
		},
	}

	cmd.Flags().StringVarP(&trackerName, "tracker", "t", "", "Apply a configured tracker's torrent settings")
	cmd.Flags().BoolVar(&add, "add", false, "Also copy the torrent into the client watch directory")
	return cmd
}

func newTorrentAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <torrent>...",
		Short: "Copy .torrent files into the client watch directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, logger, err := ctx.runContext(cmd)
			if err != nil {
				return err
			}
			torrents := make([]string, 0, len(args))
			for _, arg := range args {
				path, err := filepath.Abs(strings.TrimSpace(arg))
				if err != nil {
					return fmt.Errorf("resolve torrent path: %w", err)
				}
				torrents = append(torrents, path)
			}
			addJ, err := addtorrent.New(ctx.jobOptions(cfg, logger), addtorrent.Options{
				WatchDir: cfg.Client.WatchDir,
				Torrents: torrents,
			})
			if err != nil {
				return err
			}
			_, err = runJobs(runCtx, cmd, cfg, logger, []*job.Job{addJ}, runOptions{})
			return err
		},
	}
}
