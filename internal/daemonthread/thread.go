package daemonthread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"releasekit/internal/logging"
)

var (
	// ErrNotStarted is returned by Unblock and Join before Start.
	ErrNotStarted = errors.New("daemon thread not started")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("daemon thread already started")
)

// Worker is the unit of work driven by a Thread.
type Worker interface {
	// Initialize runs once, before the first Work call.
	Initialize(ctx context.Context) error
	// Work runs once per Unblock. Returning again=true makes the thread call
	// Work immediately instead of parking.
	Work(ctx context.Context) (again bool, err error)
	// Terminate runs once when the loop exits, even after a failure.
	Terminate(ctx context.Context) error
}

// Funcs adapts plain functions to Worker. Nil fields are no-ops.
type Funcs struct {
	InitializeFunc func(ctx context.Context) error
	WorkFunc       func(ctx context.Context) (bool, error)
	TerminateFunc  func(ctx context.Context) error
}

func (f Funcs) Initialize(ctx context.Context) error {
	if f.InitializeFunc == nil {
		return nil
	}
	return f.InitializeFunc(ctx)
}

func (f Funcs) Work(ctx context.Context) (bool, error) {
	if f.WorkFunc == nil {
		return false, nil
	}
	return f.WorkFunc(ctx)
}

func (f Funcs) Terminate(ctx context.Context) error {
	if f.TerminateFunc == nil {
		return nil
	}
	return f.TerminateFunc(ctx)
}

// PanicError wraps a value recovered from a panicking worker step.
type PanicError struct {
	Step  string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Step, e.Value)
}

// Unwrap exposes a panicked error value to errors.Is and errors.As.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Option configures a Thread.
type Option func(*Thread)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Thread) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Thread drives a Worker. The zero value is not usable; call New.
type Thread struct {
	name   string
	worker Worker
	logger *slog.Logger

	wake chan struct{}
	done chan struct{}

	running atomic.Bool
	alive   atomic.Bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	err     error
}

// New returns an unstarted thread for w.
func New(name string, w Worker, opts ...Option) *Thread {
	t := &Thread{
		name:   name,
		worker: w,
		logger: logging.NewNop(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.NewComponentLogger(t.logger, "daemonthread").With(logging.String("thread", name))
	return t
}

// Name returns the thread's name.
func (t *Thread) Name() string { return t.name }

// Start launches the worker goroutine. The thread stops when ctx is canceled.
func (t *Thread) Start(ctx context.Context) error {
	if t.worker == nil {
		return fmt.Errorf("daemon thread %s: nil worker", t.name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.started = true
	t.cancel = cancel
	t.running.Store(true)
	t.alive.Store(true)
	go t.run(runCtx)
	return nil
}

// Unblock wakes the worker for one more Work step. Calls made while Work is
// running are remembered, so the next step is never lost; repeated calls
// coalesce into one.
func (t *Thread) Unblock() error {
	if !t.isStarted() {
		return ErrNotStarted
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop asks the loop to exit. It returns immediately; use Join to wait. The
// context given to Work is canceled, so a parked or cancellable step returns
// promptly. Stop before Start is a no-op.
func (t *Thread) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	t.running.Store(false)
	cancel()
}

// IsAlive reports whether the worker goroutine is running.
func (t *Thread) IsAlive() bool {
	return t.alive.Load()
}

// Done is closed when the worker goroutine has exited.
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// Join blocks until the worker goroutine exits or ctx is done. It returns the
// failure captured from Initialize, Work, or Terminate, if any.
func (t *Thread) Join(ctx context.Context) error {
	if !t.isStarted() {
		return ErrNotStarted
	}
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the captured failure without waiting.
func (t *Thread) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Thread) isStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *Thread) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)
	defer t.alive.Store(false)
	defer t.cancel()

	t.logger.Debug("daemon thread started")

	if err := t.step("initialize", func() error { return t.worker.Initialize(ctx) }); err != nil {
		t.fail(err)
	} else {
		t.loop(ctx)
	}

	// Terminate must run even though Stop canceled ctx.
	if err := t.step("terminate", func() error { return t.worker.Terminate(context.WithoutCancel(ctx)) }); err != nil {
		t.fail(err)
	}

	if err := t.Err(); err != nil {
		t.logger.Debug("daemon thread exited with error", logging.Error(err))
		return
	}
	t.logger.Debug("daemon thread exited")
}

func (t *Thread) loop(ctx context.Context) {
	again := false
	for t.running.Load() && ctx.Err() == nil {
		if !again {
			select {
			case <-t.wake:
			case <-ctx.Done():
				return
			}
			if !t.running.Load() {
				return
			}
		}
		err := t.step("work", func() error {
			var workErr error
			again, workErr = t.worker.Work(ctx)
			return workErr
		})
		if err != nil {
			t.fail(err)
			return
		}
	}
}

func (t *Thread) step(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Step: name, Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn()
}

// fail records err and stops the loop. Every failure is kept.
func (t *Thread) fail(err error) {
	t.mu.Lock()
	t.err = errors.Join(t.err, err)
	t.mu.Unlock()
	t.running.Store(false)
	logging.WarnWithContext(t.logger, "daemon thread step failed", "daemonthread_failure",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the owner receives this error from Join"),
		logging.String(logging.FieldImpact, "the thread stopped processing work"))
}
