package main

import (
	"log/slog"
	"path/filepath"
	"strings"

	"releasekit/internal/config"
	"releasekit/internal/fileutil"
	"releasekit/internal/httpcache"
	"releasekit/internal/imghost"
	"releasekit/internal/job"
	"releasekit/internal/jobs/addtorrent"
	"releasekit/internal/jobs/createtorrent"
	imghostjob "releasekit/internal/jobs/imghost"
	"releasekit/internal/jobs/mediainfo"
	"releasekit/internal/jobs/screenshots"
	"releasekit/internal/jobs/search"
	"releasekit/internal/jobs/submit"
	"releasekit/internal/logging"
	"releasekit/internal/media/ffprobe"
	"releasekit/internal/staging"
)

// releaseName is the content's base name without a video extension.
func releaseName(content string) string {
	name := filepath.Base(filepath.Clean(content))
	if fileutil.IsVideo(name) {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

func screenshotRoot(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "screenshots")
}

func screenshotDir(cfg *config.Config, content string) string {
	return staging.Dir(screenshotRoot(cfg), releaseName(content))
}

func torrentJob(base job.Options, cfg *config.Config, content, trackerName string, tracker config.Tracker) (*job.Job, error) {
	return createtorrent.New(base, createtorrent.Options{
		Content:     content,
		Tracker:     trackerName,
		AnnounceURL: tracker.AnnounceURL,
		Source:      tracker.Source,
		Private:     tracker.Private,
		Exclude:     tracker.Exclude,
		OutputDir:   cfg.Paths.TorrentDir,
		Executable:  cfg.Jobs.ProcessWorkerExecutable,
	})
}

func screenshotsJob(base job.Options, cfg *config.Config, content string, count int) (*job.Job, error) {
	return screenshots.New(base, screenshots.Options{
		Content:    content,
		Count:      count,
		OutputDir:  screenshotDir(cfg, content),
		FFmpeg:     cfg.FFmpegBinary(),
		FFprobe:    cfg.FFprobeBinary(),
		Executable: cfg.Jobs.ProcessWorkerExecutable,
	})
}

func mediainfoJob(base job.Options, cfg *config.Config, content string) (*job.Job, error) {
	return mediainfo.New(base, mediainfo.Options{
		Content: content,
		Prober:  ffprobe.New(cfg.FFprobeBinary()),
	})
}

// submitPlan is the job graph for one tracker submission.
type submitPlan struct {
	jobs   []*job.Job
	submit *job.Job
}

// buildSubmitPlan assembles the jobs for submitting content to a tracker.
// Piped downstream jobs come before their upstream in the returned order so
// they are running before a cached upstream replays into them.
func buildSubmitPlan(base job.Options, cfg *config.Config, logger *slog.Logger, store *httpcache.Store, trackerName, content string, tracker config.Tracker) (*submitPlan, error) {
	torrentJ, err := torrentJob(base, cfg, content, trackerName, tracker)
	if err != nil {
		return nil, err
	}
	mediaJ, err := mediainfoJob(base, cfg, content)
	if err != nil {
		return nil, err
	}

	var downstream, upstream []*job.Job
	deps := []*job.Job{mediaJ}

	if tracker.AddToClient {
		addJ, err := addtorrent.New(base, addtorrent.Options{WatchDir: cfg.Client.WatchDir})
		if err != nil {
			return nil, err
		}
		if err := pipeJobs(torrentJ, addJ); err != nil {
			return nil, err
		}
		downstream = append(downstream, addJ)
	}
	upstream = append(upstream, torrentJ, mediaJ)

	count := cfg.Jobs.ScreenshotCount
	if tracker.Screenshots && count > 0 {
		shotsJ, err := screenshotsJob(base, cfg, content, count)
		if err != nil {
			return nil, err
		}
		upstream = append(upstream, shotsJ)
		if strings.TrimSpace(cfg.ImageHost.UploadURL) != "" {
			uploader, err := newUploader(cfg)
			if err != nil {
				return nil, err
			}
			hostJ, err := uploadJob(base, uploader, nil)
			if err != nil {
				return nil, err
			}
			if err := pipeJobs(shotsJ, hostJ); err != nil {
				return nil, err
			}
			downstream = append(downstream, hostJ)
			deps = append(deps, hostJ)
		} else {
			logging.WarnWithContext(logger, "screenshots will not be uploaded", "imghost_unconfigured",
				logging.String(logging.FieldErrorHint, "set imghost.upload_url"),
				logging.String(logging.FieldImpact, "the submission carries local screenshot paths"))
			deps = append(deps, shotsJ)
		}
	}

	if tracker.Search {
		client, err := newTMDBClient(cfg, store)
		if err != nil {
			return nil, err
		}
		searchJ, err := search.New(base, search.Options{Release: releaseName(content), Searcher: client})
		if err != nil {
			return nil, err
		}
		upstream = append(upstream, searchJ)
		deps = append(deps, searchJ)
	}

	submitJ, err := submit.New(base, submit.Options{
		Release:      releaseName(content),
		Tracker:      trackerName,
		APIURL:       tracker.APIURL,
		APIKey:       tracker.APIKey,
		Torrent:      torrentJ,
		Dependencies: deps,
	})
	if err != nil {
		return nil, err
	}

	jobs := append(downstream, upstream...)
	jobs = append(jobs, submitJ)
	return &submitPlan{jobs: jobs, submit: submitJ}, nil
}

func uploadJob(base job.Options, uploader imghost.Uploader, files []string) (*job.Job, error) {
	return imghostjob.New(base, imghostjob.Options{Uploader: uploader, Files: files})
}
