package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"releasekit/internal/jobcache"
	"releasekit/internal/logging"
	"releasekit/internal/services"
	"releasekit/internal/signal"
)

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("job already started")
	// ErrFinished is returned when output or errors are added after Finish.
	ErrFinished = errors.New("job already finished")
	// ErrPipeUnsupported is returned by PipeInput and PipeClosed for handlers
	// that do not consume another job's output.
	ErrPipeUnsupported = errors.New("job does not accept piped input")
)

// Built-in signals.
const (
	SignalOutput   signal.Name = "output"
	SignalError    signal.Name = "error"
	SignalInfo     signal.Name = "info"
	SignalFinished signal.Name = "finished"
)

// Handler does a job's work.
type Handler interface {
	// Initialize validates and stores arguments. It must not block.
	Initialize(j *Job) error
	// Execute begins the work. It may finish the job before returning or
	// leave that to a worker it starts. A returned error becomes the job's
	// fatal error and finishes it.
	Execute(ctx context.Context, j *Job) error
}

// Stopper is implemented by handlers that own a worker to stop.
type Stopper interface {
	Stop(j *Job)
}

// Piper is implemented by handlers that consume another job's output.
type Piper interface {
	PipeInput(j *Job, value string) error
	PipeClosed(j *Job) error
}

// LoggerAware handlers receive the job's logger before Initialize.
type LoggerAware interface {
	SetLogger(logger *slog.Logger)
}

// Options configures a Job.
type Options struct {
	Name  string
	Label string
	// Args identify the job's cache entry.
	Args        []jobcache.Arg
	Cache       *jobcache.Store
	IgnoreCache bool
	Logger      *slog.Logger
	// Enabled is evaluated lazily by the pipeline; nil means enabled.
	Enabled func() bool
	// Signals registers extra signals beyond the built-in ones.
	Signals []signal.Name
}

// Job is one step of a pipeline. All methods are safe for concurrent use.
// Listeners run synchronously on the goroutine that triggered them, so a
// single producer sees its emissions delivered in order.
type Job struct {
	name        string
	label       string
	args        []jobcache.Arg
	cache       *jobcache.Store
	ignoreCache bool
	enabled     func() bool
	handler     Handler
	logger      *slog.Logger
	signals     *signal.Emitter

	done chan struct{}

	mu         sync.Mutex
	started    bool
	finished   bool
	settled    bool
	fromCache  bool
	output     []string
	errs       []error
	fatal      error
	startedAt  time.Time
	finishedAt time.Time

	// inflight counts output and error emissions still being delivered.
	// A Finish that arrives meanwhile is completed by the last of them.
	inflight      int
	finishPending bool
}

// New builds a job and runs the handler's Initialize.
func New(opts Options, h Handler) (*Job, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "job", "new", "job name is required", nil)
	}
	if h == nil {
		return nil, services.Wrap(services.ErrValidation, "job", "new", fmt.Sprintf("job %s has no handler", name), nil)
	}
	label := strings.TrimSpace(opts.Label)
	if label == "" {
		label = defaultLabel(name)
	}

	j := &Job{
		name:        name,
		label:       label,
		args:        append([]jobcache.Arg(nil), opts.Args...),
		cache:       opts.Cache,
		ignoreCache: opts.IgnoreCache,
		enabled:     opts.Enabled,
		handler:     h,
		signals:     signal.NewEmitter(SignalOutput, SignalError, SignalInfo, SignalFinished),
		done:        make(chan struct{}),
	}
	for _, sig := range opts.Signals {
		if err := j.signals.Register(sig); err != nil {
			return nil, fmt.Errorf("job %s: %w", name, err)
		}
	}
	j.logger = logging.NewComponentLogger(opts.Logger, "job").With(logging.String(logging.FieldJob, name))

	if aware, ok := h.(LoggerAware); ok {
		aware.SetLogger(j.logger)
	}
	if err := h.Initialize(j); err != nil {
		return nil, fmt.Errorf("initialize job %s: %w", name, err)
	}
	return j, nil
}

func defaultLabel(name string) string {
	words := strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return cases.Title(language.English).String(words)
}

// Name returns the job's stable identifier.
func (j *Job) Name() string { return j.name }

// Label returns the human-facing name.
func (j *Job) Label() string { return j.label }

// Logger returns the job's logger.
func (j *Job) Logger() *slog.Logger { return j.logger }

// Handler returns the job's handler.
func (j *Job) Handler() Handler { return j.handler }

// Enabled evaluates the job's enable predicate.
func (j *Job) Enabled() bool {
	if j.enabled == nil {
		return true
	}
	return j.enabled()
}

// CachePath returns the job's cache file, or "" without a cache.
func (j *Job) CachePath() string {
	return j.cache.PathFor(j.name, j.args)
}

// Start replays cached output and finishes when a cache entry exists;
// otherwise it runs the handler's Execute. Failures inside Execute are
// recorded on the job and surface from Wait.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, j.name)
	}
	if j.finished {
		j.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFinished, j.name)
	}
	j.started = true
	j.startedAt = time.Now()
	j.mu.Unlock()

	if j.replayCache() {
		return nil
	}

	j.logger.Debug("job started", logging.String(logging.FieldEventType, "job_start"))
	ctx = services.WithJob(ctx, j.name)
	if err := j.execute(ctx); err != nil {
		j.Exception(err)
		j.Finish()
	}
	return nil
}

func (j *Job) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Where: "execute", Value: r, Stack: string(debug.Stack())}
		}
	}()
	return j.handler.Execute(ctx, j)
}

func (j *Job) replayCache() bool {
	if j.ignoreCache || !j.cache.Enabled() {
		return false
	}
	output, ok, err := j.cache.Load(j.name, j.args)
	if err != nil {
		logging.WarnWithContext(j.logger, "job cache unreadable", "job_cache_unreadable",
			logging.Error(err),
			logging.String("path", j.CachePath()),
			logging.String(logging.FieldErrorHint, "delete the file or run with --ignore-cache"),
			logging.String(logging.FieldImpact, "the job runs without its cached result"))
		return false
	}
	if !ok {
		return false
	}

	j.mu.Lock()
	j.fromCache = true
	j.mu.Unlock()
	j.logger.Info("job output replayed from cache",
		logging.String(logging.FieldEventType, "job_cache_hit"),
		logging.Int("lines", len(output)))
	for _, line := range output {
		if err := j.Send(line); err != nil {
			break
		}
	}
	j.Finish()
	return true
}

// Send appends a line of output and notifies output listeners.
func (j *Job) Send(value string) error {
	j.mu.Lock()
	if j.finished {
		j.mu.Unlock()
		return fmt.Errorf("%w: send to %s", ErrFinished, j.name)
	}
	j.output = append(j.output, value)
	j.inflight++
	j.mu.Unlock()
	defer j.delivered()
	j.emit(SignalOutput, value)
	return nil
}

// Error records a reported problem and notifies error listeners. value may
// be an error or anything printable. The job keeps running.
func (j *Job) Error(value any) error {
	err := asError(value)
	j.mu.Lock()
	if j.finished {
		j.mu.Unlock()
		return fmt.Errorf("%w: error on %s: %v", ErrFinished, j.name, err)
	}
	j.errs = append(j.errs, err)
	j.inflight++
	j.mu.Unlock()
	defer j.delivered()
	j.logger.Debug("job reported error", logging.Error(err))
	j.emit(SignalError, err)
	return nil
}

func asError(value any) error {
	switch v := value.(type) {
	case nil:
		return errors.New("unknown error")
	case error:
		return v
	case string:
		return errors.New(v)
	default:
		return fmt.Errorf("%v", v)
	}
}

// Exception records the fatal error returned by every Wait. Only the first
// one is kept. It does not finish the job.
func (j *Job) Exception(err error) {
	if err == nil {
		return
	}
	j.mu.Lock()
	switch {
	case j.settled:
		j.mu.Unlock()
		j.logger.Warn("fatal error after job finished ignored", logging.Error(err))
		return
	case j.fatal != nil:
		j.mu.Unlock()
		j.logger.Warn("additional fatal error ignored", logging.Error(err))
		return
	}
	j.fatal = err
	j.mu.Unlock()
	logging.ErrorWithContext(j.logger, "job failed", "job_fatal", logging.Error(err))
}

// Info notifies info listeners of a progress value. It is not persisted.
func (j *Job) Info(value any) {
	j.emit(SignalInfo, value)
}

// delivered ends one output or error emission and completes a Finish that
// was waiting for it.
func (j *Job) delivered() {
	j.mu.Lock()
	j.inflight--
	complete := j.inflight == 0 && j.finishPending
	if complete {
		j.finishPending = false
	}
	j.mu.Unlock()
	if complete {
		j.complete()
	}
}

// Finish marks the job finished, notifies finished listeners, writes the
// cache on a clean finish, then releases waiters. Later calls do nothing.
// Output and errors accepted before Finish reach their listeners before the
// finished signal: when another goroutine is still delivering one, the rest
// of Finish runs on that goroutine once it is done.
func (j *Job) Finish() {
	j.mu.Lock()
	if j.finished {
		j.mu.Unlock()
		return
	}
	j.finished = true
	j.finishedAt = time.Now()
	if j.inflight > 0 {
		j.finishPending = true
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()
	j.complete()
}

func (j *Job) complete() {
	j.emit(SignalFinished, j)

	j.mu.Lock()
	clean := j.cleanLocked()
	fromCache := j.fromCache
	output := append([]string(nil), j.output...)
	code := exitCode(clean)
	elapsed := time.Duration(0)
	if !j.startedAt.IsZero() {
		elapsed = j.finishedAt.Sub(j.startedAt)
	}
	errCount := len(j.errs)
	j.mu.Unlock()

	if clean && !fromCache && j.cache.Enabled() {
		if err := j.cache.Save(j.name, j.args, output); err != nil {
			logging.WarnWithContext(j.logger, "job cache write failed", "job_cache_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "the next run repeats this job"))
		}
	}

	j.mu.Lock()
	j.settled = true
	j.mu.Unlock()
	close(j.done)

	j.logger.Info("job finished",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Int("exit_code", code),
		logging.Int("output_lines", len(output)),
		logging.Int("errors", errCount),
		logging.Bool("cached", fromCache),
		logging.Duration("elapsed", elapsed))
}

// Stop stops any worker the handler owns, then finishes the job.
func (j *Job) Stop() {
	if stopper, ok := j.handler.(Stopper); ok {
		stopper.Stop(j)
	}
	j.Finish()
}

// Wait blocks until the job is finished or ctx is done and returns the
// job's fatal error, if any. Any number of goroutines may wait.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Fatal()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the job has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// PipeInput forwards a value from an upstream job to the handler.
func (j *Job) PipeInput(value string) error {
	p, ok := j.handler.(Piper)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPipeUnsupported, j.name)
	}
	return p.PipeInput(j, value)
}

// PipeClosed tells the handler no more piped input will arrive.
func (j *Job) PipeClosed() error {
	p, ok := j.handler.(Piper)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPipeUnsupported, j.name)
	}
	return p.PipeClosed(j)
}

// Output returns a copy of the output lines.
func (j *Job) Output() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.output...)
}

// Errors returns a copy of the reported errors.
func (j *Job) Errors() []error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]error(nil), j.errs...)
}

// Fatal returns the fatal error, if any.
func (j *Job) Fatal() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fatal
}

// IsStarted reports whether Start has been called.
func (j *Job) IsStarted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.started
}

// IsFinished reports whether Finish has been called.
func (j *Job) IsFinished() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finished
}

// FromCache reports whether the output was replayed from the cache.
func (j *Job) FromCache() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fromCache
}

// Elapsed returns the time between Start and Finish, or zero.
func (j *Job) Elapsed() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.startedAt.IsZero() || j.finishedAt.IsZero() {
		return 0
	}
	return j.finishedAt.Sub(j.startedAt)
}

// ExitCode returns 0 for a job that finished with output, no reported errors
// and no fatal error, and 1 otherwise. ok is false while unfinished.
func (j *Job) ExitCode() (code int, ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.finished {
		return 0, false
	}
	return exitCode(j.cleanLocked()), true
}

func (j *Job) cleanLocked() bool {
	return len(j.output) > 0 && len(j.errs) == 0 && j.fatal == nil
}

func exitCode(clean bool) int {
	if clean {
		return 0
	}
	return 1
}

func (j *Job) String() string {
	return j.name
}
