// Package createtorrent is the job that hashes release content into a
// .torrent file in a separate worker process.
package createtorrent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"releasekit/internal/daemonproc"
	"releasekit/internal/job"
	"releasekit/internal/jobcache"
	"releasekit/internal/logging"
	"releasekit/internal/services"
	"releasekit/internal/signal"
	"releasekit/internal/torrent"
)

// Name is the job name and cache key prefix.
const Name = "torrent"

// SignalFileTree carries the scanned *torrent.Plan before hashing starts.
const SignalFileTree signal.Name = "file_tree"

// Options configures the torrent for one tracker.
type Options struct {
	Content     string
	Tracker     string
	AnnounceURL string
	Source      string
	Private     bool
	Exclude     []string
	OutputDir   string
	// Executable overrides the binary started as the worker process.
	Executable string
}

// New returns the torrent job.
func New(base job.Options, opts Options) (*job.Job, error) {
	base.Name = Name
	if base.Label == "" {
		base.Label = "Torrent"
	}
	base.Args = []jobcache.Arg{
		jobcache.Path("content", opts.Content),
		jobcache.Value("tracker", opts.Tracker),
	}
	base.Signals = append(base.Signals, SignalFileTree)
	return job.New(base, &Handler{opts: opts})
}

// Handler runs torrent.create in a daemonproc worker.
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
		return services.Wrap(services.ErrValidation, "torrent", "initialize", "content path is required", nil)
	}
	if strings.TrimSpace(h.opts.OutputDir) == "" {
		return services.Wrap(services.ErrConfiguration, "torrent", "initialize", "torrent output directory is not configured", nil)
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, j *job.Job) error {
	if _, err := os.Stat(h.opts.Content); err != nil {
		return services.Wrap(services.ErrNotFound, "torrent", "stat content", h.opts.Content, err)
	}
	output := torrent.OutputPath(h.opts.OutputDir, h.opts.Content, h.opts.Tracker)
	req := torrent.CreateRequest{
		Options: torrent.Options{
			Path:        h.opts.Content,
			AnnounceURL: h.opts.AnnounceURL,
			Source:      h.opts.Source,
			Private:     h.opts.Private,
			Exclude:     h.opts.Exclude,
			CreatedBy:   "releasekit",
		},
		Output: output,
	}

	opts := []daemonproc.Option{daemonproc.WithLogger(h.logger)}
	if h.opts.Executable != "" {
		opts = append(opts, daemonproc.WithExecutable(h.opts.Executable))
	}
	proc := daemonproc.New(torrent.TargetName, req, daemonproc.Callbacks{
		OnInit: func(raw json.RawMessage) {
			var plan torrent.Plan
			if err := daemonproc.Decode(raw, &plan); err != nil {
				_ = j.Error(fmt.Errorf("decode file tree: %w", err))
				return
			}
			h.logger.Info("hashing torrent content",
				logging.String("name", plan.Name),
				logging.Int("files", len(plan.Files)),
				logging.Int64("bytes", plan.TotalSize),
				logging.Int64("piece_length", plan.PieceLength))
			_ = j.Emit(SignalFileTree, &plan)
		},
		OnInfo: func(raw json.RawMessage) {
			var percent int
			if err := daemonproc.Decode(raw, &percent); err == nil {
				j.Info(percent)
			}
		},
		OnError: func(err error) {
			_ = j.Error(err)
		},
		OnResult: func(raw json.RawMessage) {
			if raw == nil {
				return
			}
			var path string
			if err := daemonproc.Decode(raw, &path); err != nil {
				_ = j.Error(fmt.Errorf("decode torrent path: %w", err))
				return
			}
			_ = j.Send(path)
		},
	}, opts...)

	h.mu.Lock()
	h.proc = proc
	h.mu.Unlock()

	if err := proc.Start(ctx); err != nil {
		return services.Wrap(services.ErrExternalTool, "torrent", "start worker", "could not start torrent worker", err)
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
