// Package submit is the composite job that uploads a prepared release to a
// tracker API once every enabled dependency job has succeeded.
//
// The request is a generic JSON document: the release name, the torrent file
// in base64, and the output lines of each dependency keyed by job name.
package submit

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"releasekit/internal/job"
	"releasekit/internal/logging"
	"releasekit/internal/services"
)

// Name is the job name.
const Name = "submit"

// Payload is the document posted to the tracker.
type Payload struct {
	Name    string              `json:"name"`
	Tracker string              `json:"tracker"`
	Torrent string              `json:"torrent"`
	Outputs map[string][]string `json:"outputs"`
}

type response struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Options configures the job.
type Options struct {
	Release string
	Tracker string
	APIURL  string
	APIKey  string
	// Torrent is the job whose first output line is the .torrent path.
	Torrent *job.Job
	// Dependencies are waited for; disabled ones are skipped.
	Dependencies []*job.Job
	HTTPClient   *http.Client
}

// New returns the submit job. Submitting is a remote side effect, so the job
// is never cached.
func New(base job.Options, opts Options) (*job.Job, error) {
	base.Name = Name
	base.Cache = nil
	return job.New(base, &Handler{opts: opts})
}

// Handler waits for dependencies once and posts the payload.
type Handler struct {
	opts   Options
	logger *slog.Logger

	once    job.Once
	payload Payload

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (h *Handler) SetLogger(logger *slog.Logger) { h.logger = logger }

func (h *Handler) Initialize(*job.Job) error {
	if strings.TrimSpace(h.opts.Release) == "" {
		return services.Wrap(services.ErrValidation, "submit", "initialize", "release name is required", nil)
	}
	if strings.TrimSpace(h.opts.APIURL) == "" {
		return services.Wrap(services.ErrConfiguration, "submit", "initialize",
			fmt.Sprintf("tracker %s has no api_url", h.opts.Tracker), nil)
	}
	if h.opts.Torrent == nil {
		return services.Wrap(services.ErrValidation, "submit", "initialize", "torrent job is required", nil)
	}
	if h.opts.HTTPClient == nil {
		h.opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return nil
}

func (h *Handler) Execute(ctx context.Context, j *job.Job) error {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	go func() {
		defer cancel()
		if err := h.run(ctx, j); err != nil {
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

func (h *Handler) run(ctx context.Context, j *job.Job) error {
	payload, failed, err := h.Prepare(ctx)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		for _, name := range failed {
			_ = j.Error(fmt.Errorf("%s failed, not submitting", name))
		}
		return nil
	}
	url, err := h.post(ctx, payload)
	if err != nil {
		return err
	}
	h.logger.Info("release submitted",
		logging.String("tracker", h.opts.Tracker),
		logging.String("url", url))
	return j.Send(url)
}

// Prepare waits for every enabled dependency and builds the payload. The work
// happens once; later and concurrent callers get the same result. failed
// lists the labels of dependencies that did not exit cleanly.
func (h *Handler) Prepare(ctx context.Context) (payload Payload, failed []string, err error) {
	var failures []string
	err = h.once.Do(ctx, func(ctx context.Context) error {
		deps := append([]*job.Job{h.opts.Torrent}, h.opts.Dependencies...)
		outputs := make(map[string][]string, len(deps))
		for _, dep := range deps {
			if !dep.Enabled() {
				continue
			}
			if err := dep.Wait(ctx); err != nil && ctx.Err() != nil {
				return err
			}
			if code, _ := dep.ExitCode(); code != 0 {
				failures = append(failures, dep.Label())
				continue
			}
			outputs[dep.Name()] = dep.Output()
		}
		h.payload = Payload{
			Name:    strings.TrimSpace(h.opts.Release),
			Tracker: h.opts.Tracker,
			Outputs: outputs,
		}
		if len(failures) > 0 {
			return &dependencyError{labels: failures}
		}
		torrent := outputs[h.opts.Torrent.Name()]
		if len(torrent) == 0 {
			return services.Wrap(services.ErrValidation, "submit", "prepare", "no torrent was created", nil)
		}
		data, err := os.ReadFile(torrent[0])
		if err != nil {
			return services.Wrap(services.ErrNotFound, "submit", "read torrent", torrent[0], err)
		}
		h.payload.Torrent = base64.StdEncoding.EncodeToString(data)
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return Payload{}, nil, err
	}
	var depErr *dependencyError
	if errors.As(err, &depErr) {
		return h.payload, depErr.labels, nil
	}
	return h.payload, nil, err
}

// dependencyError keeps the failed labels for later Prepare callers.
type dependencyError struct {
	labels []string
}

func (e *dependencyError) Error() string {
	return "dependencies failed: " + strings.Join(e.labels, ", ")
}

func (h *Handler) post(ctx context.Context, payload Payload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.opts.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "submit", "build request", h.opts.APIURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.opts.APIKey)
	}
	resp, err := h.opts.HTTPClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "submit", "post", h.opts.APIURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "submit", "read response", h.opts.APIURL, err)
	}
	var parsed response
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(parsed.Error)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", services.Wrap(services.ErrExternalTool, "submit", "post",
			fmt.Sprintf("tracker returned %d: %s", resp.StatusCode, msg), nil)
	}
	if strings.TrimSpace(parsed.URL) == "" {
		return "", services.Wrap(services.ErrExternalTool, "submit", "post", "tracker response has no url", nil)
	}
	return parsed.URL, nil
}
