package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"releasekit/internal/job"
	"releasekit/internal/logging"
	"releasekit/internal/services"
)

// Runner starts jobs and aggregates their outcome.
type Runner struct {
	logger      *slog.Logger
	stopTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStopTimeout bounds how long a canceled run waits for stopped jobs.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// NewRunner returns a runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{logger: logging.NewNop(), stopTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "pipeline")
	return r
}

// Run is NewRunner(opts...).Run.
func Run(ctx context.Context, jobs []*job.Job, out io.Writer, opts ...Option) (int, error) {
	return NewRunner(opts...).Run(ctx, jobs, out)
}

// Run starts every enabled job in order, waits for all of them, writes the
// errors of each failed enabled job to out, and returns the first non-zero
// exit code. The error is non-nil only when the run itself could not
// complete: a job failed to start or ctx ended first.
func (r *Runner) Run(ctx context.Context, jobs []*job.Job, out io.Writer) (int, error) {
	logger := logging.WithContext(ctx, r.logger)
	enabled := make([]*job.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Enabled() {
			enabled = append(enabled, j)
			continue
		}
		logger.Debug("job disabled", logging.String(logging.FieldJob, j.Name()))
	}
	logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.Int("jobs", len(enabled)),
		logging.Int("disabled", len(jobs)-len(enabled)))

	for _, j := range enabled {
		if err := j.Start(ctx); err != nil {
			r.stopAll(enabled)
			return 1, fmt.Errorf("start %s: %w", j.Name(), err)
		}
	}

	var g errgroup.Group
	for _, j := range enabled {
		g.Go(func() error {
			// Fatal job errors count through the exit code.
			if err := j.Wait(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.WarnWithContext(logger, "pipeline interrupted", "pipeline_interrupted",
			logging.Error(err),
			logging.String(logging.FieldImpact, "unfinished jobs were stopped"))
		r.stopAll(enabled)
		return 1, err
	}

	code := 0
	for _, j := range enabled {
		jobCode, _ := j.ExitCode()
		if jobCode == 0 {
			continue
		}
		printFailure(out, j)
		if code == 0 {
			code = jobCode
		}
	}
	logger.Info("pipeline finished",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Int("exit_code", code))
	return code, nil
}

// stopAll stops unfinished jobs and waits for them, bounded by the stop
// timeout.
func (r *Runner) stopAll(jobs []*job.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.stopTimeout)
	defer cancel()
	for _, j := range jobs {
		if !j.IsFinished() {
			j.Stop()
		}
	}
	for _, j := range jobs {
		if err := j.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
			r.logger.Warn("job did not stop in time", logging.String(logging.FieldJob, j.Name()))
		}
	}
}

func printFailure(out io.Writer, j *job.Job) {
	if out == nil {
		return
	}
	fmt.Fprintf(out, "%s failed:\n", j.Label())
	for _, err := range j.Errors() {
		fmt.Fprintf(out, "  - %s\n", userMessage(err))
	}
	if fatal := j.Fatal(); fatal != nil {
		fmt.Fprintf(out, "  ! %s\n", userMessage(fatal))
	}
	if len(j.Errors()) == 0 && j.Fatal() == nil && len(j.Output()) == 0 {
		fmt.Fprintln(out, "  - no output produced")
	}
}

func userMessage(err error) string {
	details := services.Details(err)
	if msg := strings.TrimSpace(details.Message); msg != "" {
		return msg
	}
	return err.Error()
}
