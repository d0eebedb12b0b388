// Package addtorrent hands finished torrents to a BitTorrent client by
// copying them into the client's watch directory.
//
// The job either adds the torrents it was given, or, when piped from the
// torrent job, each torrent the upstream job outputs.
package addtorrent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"releasekit/internal/fileutil"
	"releasekit/internal/job"
	"releasekit/internal/logging"
	"releasekit/internal/services"
	"releasekit/internal/torrent"
)

// Name is the job name.
const Name = "add_torrent"

// Options configures the job.
type Options struct {
	WatchDir string
	// Torrents are added on Execute. Leave empty when piping.
	Torrents []string
}

// New returns the job. Its result depends on the client's state, so it is
// never cached.
func New(base job.Options, opts Options) (*job.Job, error) {
	base.Name = Name
	base.Cache = nil
	return job.New(base, &Handler{opts: opts})
}

// Handler copies torrents into the watch directory.
type Handler struct {
	opts   Options
	logger *slog.Logger
}

func (h *Handler) SetLogger(logger *slog.Logger) { h.logger = logger }

func (h *Handler) Initialize(*job.Job) error {
	h.opts.WatchDir = strings.TrimSpace(h.opts.WatchDir)
	if h.opts.WatchDir == "" {
		return services.Wrap(services.ErrConfiguration, "add_torrent", "initialize", "client watch_dir is not configured", nil)
	}
	return nil
}

func (h *Handler) Execute(_ context.Context, j *job.Job) error {
	if len(h.opts.Torrents) == 0 {
		return nil
	}
	for _, path := range h.opts.Torrents {
		h.add(j, path)
	}
	j.Finish()
	return nil
}

func (h *Handler) PipeInput(j *job.Job, value string) error {
	h.add(j, value)
	return nil
}

func (h *Handler) PipeClosed(j *job.Job) error {
	j.Finish()
	return nil
}

// add reports failures on the job instead of aborting the remaining torrents.
func (h *Handler) add(j *job.Job, path string) {
	meta, err := torrent.ReadFile(path)
	if err != nil {
		_ = j.Error(services.Wrap(services.ErrValidation, "add_torrent", "read torrent", path, err))
		return
	}
	dst, err := fileutil.CopyIntoDir(path, h.opts.WatchDir)
	if err != nil {
		_ = j.Error(fmt.Errorf("copy %s to watch directory: %w", path, err))
		return
	}
	h.logger.Info("torrent handed to client",
		logging.String("name", meta.Name),
		logging.String("info_hash", meta.InfoHashHex()),
		logging.String("watch_path", dst))
	_ = j.Send(dst)
}
