package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"releasekit/internal/job"
	"releasekit/internal/jobs/search"
	"releasekit/internal/logging"
)

func newMediainfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mediainfo <content>",
		Short: "Summarize the container and streams of the main video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			content, err := filepath.Abs(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve content path: %w", err)
			}
			runCtx, logger, err := ctx.runContext(cmd)
			if err != nil {
				return err
			}
			mediaJ, err := mediainfoJob(ctx.jobOptions(cfg, logger), cfg, content)
			if err != nil {
				return err
			}
			_, err = runJobs(runCtx, cmd, cfg, logger, []*job.Job{mediaJ}, runOptions{})
			return err
		},
	}
}

func newScreenshotsCommand(ctx *commandContext) *cobra.Command {
	var count int
	var upload bool

	cmd := &cobra.Command{
		Use:   "screenshots <content>",
		Short: "Capture evenly spaced screenshots of the main video",
		Long: `Capture evenly spaced screenshots of the main video with ffmpeg.

With --upload every screenshot is sent to the configured image host as soon
as it is written, and the image URLs are printed instead of local paths.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if count <= 0 {
				count = cfg.Jobs.ScreenshotCount
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
			shotsJ, err := screenshotsJob(base, cfg, content, count)
			if err != nil {
				return err
			}
			jobs := []*job.Job{shotsJ}
			if upload {
				uploader, err := newUploader(cfg)
				if err != nil {
					return err
				}
				hostJ, err := uploadJob(base, uploader, nil)
				if err != nil {
					return err
				}
				if err := pipeJobs(shotsJ, hostJ); err != nil {
					return err
				}
				// Only the URLs are printed; local paths stay in the log.
				_, err = runJobs(runCtx, cmd, cfg, logger, []*job.Job{hostJ, shotsJ}, runOptions{print: []*job.Job{hostJ}})
				return err
			}
			_, err = runJobs(runCtx, cmd, cfg, logger, jobs, runOptions{})
			return err
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "Number of screenshots (default from jobs.screenshot_count)")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload screenshots to the configured image host")
	return cmd
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <name>",
		Short: "Look a release name up on TMDB",
		Long: `Parse a release name (or a path whose base name is one) into a title, year
and kind, then search TMDB and print the best match.

Responses are cached in the HTTP cache; --ignore-cache refreshes them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, logger, err := ctx.runContext(cmd)
			if err != nil {
				return err
			}
			store, err := ctx.openHTTPCache(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			client, err := newTMDBClient(cfg, store)
			if err != nil {
				return err
			}
			release := releaseName(strings.TrimSpace(args[0]))
			searchJ, err := search.New(ctx.jobOptions(cfg, logger), search.Options{Release: release, Searcher: client})
			if err != nil {
				return err
			}
			if h, ok := searchJ.Handler().(*search.Handler); ok {
				q := h.Query()
				logger.Debug("parsed release name",
					logging.String("title", q.Title),
					logging.Int("year", q.Year),
					logging.String("kind", q.Kind))
			}
			_, err = runJobs(runCtx, cmd, cfg, logger, []*job.Job{searchJ}, runOptions{})
			return err
		},
	}
}
