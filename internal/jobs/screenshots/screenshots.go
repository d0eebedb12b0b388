// Package screenshots is the job that captures evenly spaced frames of the
// main video with ffmpeg. Capturing runs in a worker process; each finished
// screenshot is reported as progress and becomes one line of job output.
package screenshots

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"releasekit/internal/daemonproc"
	"releasekit/internal/fileutil"
	"releasekit/internal/job"
	"releasekit/internal/jobcache"
	"releasekit/internal/services"
)

// Name is the job name and cache key prefix.
const Name = "screenshots"

// Options configures the job.
type Options struct {
	Content   string
	Count     int
	OutputDir string
	FFmpeg    string
	FFprobe   string
	// Executable overrides the binary started as the worker process.
	Executable string
}

// New returns the screenshots job.
func New(base job.Options, opts Options) (*job.Job, error) {
	base.Name = Name
	base.Args = []jobcache.Arg{
		jobcache.Path("content", opts.Content),
		jobcache.Value("count", opts.Count),
	}
	return job.New(base, &Handler{opts: opts})
}

// Handler runs screenshots.create in a daemonproc worker.
type Handler struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	proc *daemonproc.Process
}

func (h *Handler) SetLogger(logger *slog.Logger) { h.logger = logger }

func (h *Handler) Initialize(*job.Job) error {
	h.opts.Content = strings.TrimSpace(h.opts.Content)
	if h.opts.Content == "" {
		return services.Wrap(services.ErrValidation, "screenshots", "initialize", "content path is required", nil)
	}
	if h.opts.Count <= 0 {
		return services.Wrap(services.ErrValidation, "screenshots", "initialize", "screenshot count must be positive", nil)
	}
	if strings.TrimSpace(h.opts.OutputDir) == "" {
		return services.Wrap(services.ErrConfiguration, "screenshots", "initialize", "screenshot output directory is not configured", nil)
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, j *job.Job) error {
	video, err := fileutil.MainVideo(h.opts.Content)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "screenshots", "find video", h.opts.Content, err)
	}
	if err := os.MkdirAll(h.opts.OutputDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "screenshots", "create output dir", h.opts.OutputDir, err)
	}
	req := Request{
		Video:     video,
		Count:     h.opts.Count,
		OutputDir: h.opts.OutputDir,
		FFmpeg:    h.opts.FFmpeg,
		FFprobe:   h.opts.FFprobe,
	}

	opts := []daemonproc.Option{daemonproc.WithLogger(h.logger)}
	if h.opts.Executable != "" {
		opts = append(opts, daemonproc.WithExecutable(h.opts.Executable))
	}
	proc := daemonproc.New(TargetName, req, daemonproc.Callbacks{
		OnInfo: func(raw json.RawMessage) {
			var path string
			if err := daemonproc.Decode(raw, &path); err != nil {
				_ = j.Error(fmt.Errorf("decode screenshot path: %w", err))
				return
			}
			_ = j.Send(path)
		},
		OnError: func(err error) {
			_ = j.Error(err)
		},
	}, opts...)

	h.mu.Lock()
	h.proc = proc
	h.mu.Unlock()

	if err := proc.Start(ctx); err != nil {
		return services.Wrap(services.ErrExternalTool, "screenshots", "start worker", "could not start screenshot worker", err)
	}
	go func() {
		if err := proc.Join(context.WithoutCancel(ctx)); err != nil {
			j.Exception(err)
		}
		j.Finish()
	}()
	return nil
}

func (h *Handler) Stop(*job.Job) {
	h.mu.Lock()
	proc := h.proc
	h.mu.Unlock()
	if proc != nil {
		proc.Stop()
	}
}
