// Package mediainfo is the job that summarizes the main video file of a
// release with ffprobe. The probe runs on a daemon thread so Start returns
// immediately.
package mediainfo

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"releasekit/internal/daemonthread"
	"releasekit/internal/fileutil"
	"releasekit/internal/job"
	"releasekit/internal/jobcache"
	"releasekit/internal/logging"
	"releasekit/internal/media/ffprobe"
	"releasekit/internal/services"
)

// Name is the job name and cache key prefix.
const Name = "mediainfo"

// Prober inspects one media file.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Options configures the job.
type Options struct {
	Content string
	// Prober defaults to ffprobe on PATH.
	Prober Prober
}

// New returns the mediainfo job.
func New(base job.Options, opts Options) (*job.Job, error) {
	base.Name = Name
	if base.Label == "" {
		base.Label = "Mediainfo"
	}
	base.Args = []jobcache.Arg{jobcache.Path("content", opts.Content)}
	return job.New(base, &Handler{opts: opts})
}

// Handler probes content on a daemon thread.
type Handler struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	thread *daemonthread.Thread
}

func (h *Handler) SetLogger(logger *slog.Logger) { h.logger = logger }

func (h *Handler) Initialize(*job.Job) error {
	h.opts.Content = strings.TrimSpace(h.opts.Content)
	if h.opts.Content == "" {
		return services.Wrap(services.ErrValidation, "mediainfo", "initialize", "content path is required", nil)
	}
	if h.opts.Prober == nil {
		h.opts.Prober = ffprobe.New("")
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, j *job.Job) error {
	var thread *daemonthread.Thread
	thread = daemonthread.New("mediainfo", daemonthread.Funcs{
		WorkFunc: func(ctx context.Context) (bool, error) {
			defer thread.Stop()
			return false, h.probe(ctx, j)
		},
	}, daemonthread.WithLogger(h.logger))

	h.mu.Lock()
	h.thread = thread
	h.mu.Unlock()

	if err := thread.Start(ctx); err != nil {
		return err
	}
	if err := thread.Unblock(); err != nil {
		thread.Stop()
		return err
	}
	go func() {
		if err := thread.Join(context.WithoutCancel(ctx)); err != nil {
			j.Exception(err)
		}
		j.Finish()
	}()
	return nil
}

func (h *Handler) probe(ctx context.Context, j *job.Job) error {
	video, err := fileutil.MainVideo(h.opts.Content)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "mediainfo", "find video", h.opts.Content, err)
	}
	h.logger.Debug("probing main video", logging.String("path", video))
	result, err := h.opts.Prober.Inspect(ctx, video)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "mediainfo", "ffprobe", video, err)
	}
	if result.StreamCount("video") == 0 {
		_ = j.Error(services.Wrap(services.ErrValidation, "mediainfo", "inspect", "no video stream in "+video, nil))
	}
	for _, line := range result.Summary() {
		if err := j.Send(line); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) Stop(*job.Job) {
	h.mu.Lock()
	thread := h.thread
	h.mu.Unlock()
	if thread != nil {
		thread.Stop()
	}
}
