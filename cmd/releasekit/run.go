package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"releasekit/internal/chain"
	"releasekit/internal/config"
	"releasekit/internal/job"
	"releasekit/internal/pipeline"
)

// runOutcome is what a finished run reports back to its command.
type runOutcome struct {
	code     int
	duration time.Duration
}

type runOptions struct {
	// summary adds the per-job table on stderr.
	summary bool
	// print limits stdout to these jobs; nil prints every job.
	print []*job.Job
}

// runJobs runs jobs through the pipeline runner, prints enabled jobs' output
// to stdout, and returns an exitCodeError when the run failed.
func runJobs(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, jobs []*job.Job, opts runOptions) (runOutcome, error) {
	stderr := cmd.ErrOrStderr()
	if f, ok := stderr.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		for _, j := range jobs {
			attachProgress(stderr, j)
		}
	}

	runner := pipeline.NewRunner(
		pipeline.WithLogger(logger),
		pipeline.WithStopTimeout(time.Duration(cfg.Jobs.StopTimeoutSeconds)*time.Second),
	)
	started := time.Now()
	code, err := runner.Run(ctx, jobs, stderr)
	outcome := runOutcome{code: code, duration: time.Since(started)}
	if err != nil {
		return outcome, err
	}

	printed := opts.print
	if printed == nil {
		printed = jobs
	}
	printOutputs(cmd.OutOrStdout(), printed)
	if opts.summary {
		fmt.Fprintln(stderr, pipeline.Summary(jobs))
	}
	if code != 0 {
		return outcome, &exitCodeError{code: code}
	}
	return outcome, nil
}

func printOutputs(out io.Writer, jobs []*job.Job) {
	multi := countEnabled(jobs) > 1
	for _, j := range jobs {
		if !j.Enabled() || len(j.Output()) == 0 {
			continue
		}
		if multi {
			fmt.Fprintf(out, "%s:\n", j.Label())
		}
		for _, line := range j.Output() {
			if multi {
				fmt.Fprintf(out, "  %s\n", line)
			} else {
				fmt.Fprintln(out, line)
			}
		}
	}
}

func countEnabled(jobs []*job.Job) int {
	n := 0
	for _, j := range jobs {
		if j.Enabled() {
			n++
		}
	}
	return n
}

// attachProgress rewrites one status line per integer info value. Other info
// payloads are ignored.
func attachProgress(out io.Writer, j *job.Job) {
	var mu sync.Mutex
	last := -1
	_ = j.OnInfo(func(value any) {
		percent, ok := value.(int)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if percent == last {
			return
		}
		last = percent
		fmt.Fprintf(out, "\r%s: %3d%%", j.Label(), percent)
		if percent >= 100 {
			fmt.Fprintln(out)
		}
	})
}

// failedLabels lists enabled jobs that did not finish cleanly.
func failedLabels(jobs []*job.Job) []string {
	var failed []string
	for _, j := range jobs {
		if !j.Enabled() {
			continue
		}
		if code, ok := j.ExitCode(); !ok || code != 0 {
			failed = append(failed, j.Label())
		}
	}
	return failed
}

// pipeJobs is chain.Pipe for commands that build a two-job chain.
func pipeJobs(up, down *job.Job) error {
	if err := chain.Pipe(up, down); err != nil {
		return fmt.Errorf("chain %s to %s: %w", up.Name(), down.Name(), err)
	}
	return nil
}
