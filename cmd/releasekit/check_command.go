package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"releasekit/internal/deps"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check external tools and configured services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			statuses := deps.Check(cmd.Context(), deps.Tools(cfg))
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				where, version := s.Path, s.Version
				if !s.Found() {
					where = s.Problem
				}
				if version == "" {
					version = "-"
				}
				rows = append(rows, []string{s.Name, where, version, strings.Join(s.UsedBy, ", "), yesNo(!s.Optional)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Tool", "Path", "Version", "Used by", "Required"},
				rows, nil,
			))

			settings := [][]string{
				{"TMDB", yesNo(strings.TrimSpace(cfg.TMDB.APIKey) != ""), "tmdb.api_key or TMDB_API_KEY"},
				{"Image host", yesNo(strings.TrimSpace(cfg.ImageHost.UploadURL) != ""), "imghost.upload_url"},
				{"Client watch dir", yesNo(strings.TrimSpace(cfg.Client.WatchDir) != ""), "client.watch_dir"},
				{"Notifications", yesNo(strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""), "notifications.ntfy_topic"},
			}
			for _, name := range cfg.TrackerNames() {
				tracker, _ := cfg.Tracker(name)
				settings = append(settings, []string{"Tracker " + name, yesNo(tracker.APIURL != ""), "trackers." + name + ".api_url"})
			}
			fmt.Fprintln(out, renderTable([]string{"Service", "Configured", "Setting"}, settings, nil))

			if missing := deps.Missing(statuses); len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for _, m := range missing {
					names = append(names, m.Command)
				}
				return errors.New("missing required tools: " + strings.Join(names, ", "))
			}
			return nil
		},
	}
}
