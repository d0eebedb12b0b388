package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"releasekit/internal/logging"
	"releasekit/internal/notifications"
	"releasekit/internal/services"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "submit <tracker> <content>",
		Short: "Prepare a release and submit it to a tracker",
		Long: `Create the torrent, probe the main video, take and upload screenshots,
look the title up on TMDB, and post everything to the tracker's API.

Which optional jobs run is decided per tracker by its screenshots, search and
add_to_client settings. Completed jobs are cached, so re-running after a
failed upload only repeats what failed.

Examples:
  releasekit submit example ~/media/Some.Movie.2019.1080p.BluRay.x264-GRP
  releasekit submit example movie.mkv --ignore-cache`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			trackerName := strings.ToLower(strings.TrimSpace(args[0]))
			tracker, err := lookupTracker(cfg, trackerName)
			if err != nil {
				return err
			}
			content, err := filepath.Abs(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("resolve content path: %w", err)
			}
			if _, err := os.Stat(content); err != nil {
				return services.Wrap(services.ErrNotFound, "cli", "submit", content, err)
			}

			runCtx, logger, err := ctx.runContext(cmd)
			if err != nil {
				return err
			}
			runCtx = services.WithTracker(runCtx, trackerName)
			logger = logging.WithContext(runCtx, logger)

			store, err := ctx.openHTTPCache(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			notifier := notifications.NewService(cfg)
			plan, err := buildSubmitPlan(ctx.jobOptions(cfg, logger), cfg, logger, store, trackerName, content, tracker)
			if err != nil {
				if notifyErr := notifier.NotifyError(context.WithoutCancel(runCtx), err, "submit "+releaseName(content)); notifyErr != nil {
					logger.Debug("error notification failed", logging.Error(notifyErr))
				}
				return err
			}

			outcome, runErr := runJobs(runCtx, cmd, cfg, logger, plan.jobs, runOptions{summary: summary})

			run := notifications.RunSummary{
				Command:  "submit",
				Release:  releaseName(content),
				Tracker:  trackerName,
				Failed:   failedLabels(plan.jobs),
				Duration: outcome.duration,
			}
			if out := plan.submit.Output(); len(out) > 0 {
				run.URL = out[0]
			}
			if err := notifier.NotifyRunCompleted(context.WithoutCancel(runCtx), run); err != nil {
				logging.WarnWithContext(logger, "run notification failed", "notify_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
					logging.String(logging.FieldImpact, "no push notification for this run"))
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&summary, "summary", true, "Print a per-job summary table to stderr")
	return cmd
}
