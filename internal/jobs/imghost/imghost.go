// Package imghost is the job that uploads screenshots to the image host.
//
// Piped from the screenshots job, each screenshot path is queued and
// uploaded on a worker thread in arrival order; the upstream finishing
// finalizes the queue. Without a pipe the job uploads the files it was given.
package imghost

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"releasekit/internal/chain"
	"releasekit/internal/imghost"
	"releasekit/internal/job"
	"releasekit/internal/logging"
	"releasekit/internal/services"
)

// Name is the job name.
const Name = "imghost"

// Options configures the job.
type Options struct {
	Uploader imghost.Uploader
	// Files are uploaded on Execute. Leave empty when piping.
	Files []string
}

// New returns the upload job. Uploads are side effects on a remote host, so
// the job is never cached.
func New(base job.Options, opts Options) (*job.Job, error) {
	base.Name = Name
	if base.Label == "" {
		base.Label = "Image Host"
	}
	base.Cache = nil
	return job.New(base, &Handler{opts: opts})
}

// Handler drains a chain.Queue of image paths.
type Handler struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	queue *chain.Queue
}

func (h *Handler) SetLogger(logger *slog.Logger) { h.logger = logger }

func (h *Handler) Initialize(j *job.Job) error {
	if h.opts.Uploader == nil {
		return services.Wrap(services.ErrConfiguration, "imghost", "initialize", "image host is not configured", nil)
	}
	h.queue = chain.NewQueue(chain.QueueOptions{
		Name:   "imghost",
		Logger: h.logger,
		Process: func(ctx context.Context, path string) error {
			return h.upload(ctx, j, path)
		},
		OnError: func(path string, err error) {
			_ = j.Error(services.Wrap(services.ErrTransient, "imghost", "upload", path, err))
		},
		OnDrained: j.Finish,
	})
	return nil
}

func (h *Handler) Execute(ctx context.Context, j *job.Job) error {
	if err := h.queue.Start(ctx); err != nil {
		return err
	}
	if len(h.opts.Files) == 0 {
		return nil
	}
	for _, path := range h.opts.Files {
		if err := h.queue.Add(path); err != nil {
			return err
		}
	}
	return h.queue.Finalize()
}

func (h *Handler) PipeInput(_ *job.Job, value string) error {
	return h.queue.Add(value)
}

func (h *Handler) PipeClosed(*job.Job) error {
	return h.queue.Finalize()
}

func (h *Handler) Stop(*job.Job) {
	h.queue.Stop()
}

func (h *Handler) upload(ctx context.Context, j *job.Job, path string) error {
	path = strings.TrimSpace(path)
	url, err := h.opts.Uploader.Upload(ctx, path)
	if err != nil {
		return err
	}
	h.logger.Debug("image uploaded", logging.String("path", path), logging.String("url", url))
	return j.Send(url)
}
