// Package search is the job that identifies a release on TMDB from its name.
//
// Output is two lines: "tmdb:<kind>/<id>" and "<title> (<year>)".
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"releasekit/internal/identification/tmdb"
	"releasekit/internal/job"
	"releasekit/internal/jobcache"
	"releasekit/internal/logging"
	"releasekit/internal/services"
)

// Name is the job name and cache key prefix.
const Name = "search"

// Options configures the job.
type Options struct {
	// Release is a release name or a path whose base name is one.
	Release  string
	Searcher tmdb.Searcher
}

// New returns the search job.
func New(base job.Options, opts Options) (*job.Job, error) {
	base.Name = Name
	if base.Label == "" {
		base.Label = "TMDB Search"
	}
	base.Args = []jobcache.Arg{jobcache.Value("release", ParseReleaseName(opts.Release).Title)}
	return job.New(base, &Handler{opts: opts})
}

// Handler runs the lookup on its own goroutine.
type Handler struct {
	opts   Options
	query  Query
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (h *Handler) SetLogger(logger *slog.Logger) { h.logger = logger }

func (h *Handler) Initialize(*job.Job) error {
	if h.opts.Searcher == nil {
		return services.Wrap(services.ErrConfiguration, "search", "initialize", "tmdb api key is not configured", nil)
	}
	h.query = ParseReleaseName(h.opts.Release)
	if h.query.Title == "" {
		return services.Wrap(services.ErrValidation, "search", "initialize", fmt.Sprintf("no title in release name %q", h.opts.Release), nil)
	}
	return nil
}

// Query returns the parsed release name.
func (h *Handler) Query() Query { return h.query }

func (h *Handler) Execute(ctx context.Context, j *job.Job) error {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	go func() {
		defer cancel()
		if err := h.lookup(ctx, j); err != nil {
			j.Exception(err)
		}
		j.Finish()
	}()
	return nil
}

func (h *Handler) Stop(*job.Job) {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *Handler) lookup(ctx context.Context, j *job.Job) error {
	q := h.query
	opts := tmdb.SearchOptions{Year: q.Year}
	h.logger.Info("searching tmdb",
		logging.String("title", q.Title),
		logging.Int("year", q.Year),
		logging.String("kind", q.Kind))

	var (
		resp *tmdb.Response
		err  error
	)
	switch q.Kind {
	case "movie":
		resp, err = h.opts.Searcher.SearchMovieWithOptions(ctx, q.Title, opts)
	case "tv":
		// Seasons carry their own year; the show's first air date rarely matches.
		resp, err = h.opts.Searcher.SearchTVWithOptions(ctx, q.Title, tmdb.SearchOptions{})
	default:
		resp, err = h.opts.Searcher.SearchMultiWithOptions(ctx, q.Title, opts)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "search", "tmdb", q.Title, err)
	}

	var results []tmdb.Result
	if resp != nil {
		for _, r := range resp.Results {
			if r.MediaType == "movie" || r.MediaType == "tv" {
				results = append(results, r)
			}
		}
	}
	best := bestMatch(h.logger, q, results)
	if best == nil {
		_ = j.Error(services.Wrap(services.ErrNotFound, "search", "match", fmt.Sprintf("no TMDB match for %q", q.Title), nil))
		return nil
	}
	if err := j.Send(fmt.Sprintf("tmdb:%s/%d", best.MediaType, best.ID)); err != nil {
		return err
	}
	title := strings.TrimSpace(best.DisplayTitle())
	if year := best.Year(); year > 0 {
		title = fmt.Sprintf("%s (%d)", title, year)
	}
	return j.Send(title)
}
