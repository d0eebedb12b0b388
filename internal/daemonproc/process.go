package daemonproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/goccy/go-json"
	"golang.org/x/sys/unix"

	"releasekit/internal/logging"
)

var (
	// ErrNotStarted is returned by Join, Send and CloseInput before Start.
	ErrNotStarted = errors.New("worker process not started")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("worker process already started")
)

// Callbacks receive the child's events on the parent's reader goroutine, in
// emission order. Any of them may be nil.
type Callbacks struct {
	OnInit func(payload json.RawMessage)
	OnInfo func(payload json.RawMessage)
	// OnError receives every error the child reports. When nil, the first
	// one is kept and returned by Join.
	OnError func(err error)
	// OnResult is called exactly once, with the result payload or nil when
	// the child terminated without one.
	OnResult func(payload json.RawMessage)
}

// DispatchError wraps a panic raised by a callback while handling a frame.
type DispatchError struct {
	Kind  Kind
	Value any
	Stack string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s callback panicked: %v", e.Kind, e.Value)
}

func (e *DispatchError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Option configures a Process.
type Option func(*Process)

// WithLogger sets the parent-side logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Process) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithExecutable overrides the binary launched as the worker. It must call
// RunIfChild on startup.
func WithExecutable(path string) Option {
	return func(p *Process) { p.executable = path }
}

// Process is the parent-side handle on one worker process.
type Process struct {
	target     string
	args       any
	callbacks  Callbacks
	logger     *slog.Logger
	executable string

	exited  chan struct{}
	drained chan struct{}

	mu          sync.Mutex
	started     bool
	stopped     bool
	cmd         *exec.Cmd
	input       *os.File
	inputEnc    *json.Encoder
	output      *os.File
	releaseCtx  func() bool
	waitErr     error
	remoteErr   error
	dispatchErr []error
}

// New returns an unstarted worker that will run the named target with args.
func New(target string, args any, callbacks Callbacks, opts ...Option) *Process {
	p := &Process{
		target:    target,
		args:      args,
		callbacks: callbacks,
		logger:    logging.NewNop(),
		exited:    make(chan struct{}),
		drained:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "daemonproc").With(logging.String("target", target))
	return p
}

// Start launches the child and the reader goroutine. Canceling ctx stops the
// child the same way Stop does.
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}

	argsPayload, err := encodePayload(p.args)
	if err != nil {
		return fmt.Errorf("encode worker arguments: %w", err)
	}

	exe := p.executable
	if exe == "" {
		exe, err = os.Executable()
		if err != nil {
			return fmt.Errorf("resolve worker executable: %w", err)
		}
	}

	inR, inW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create input queue: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		inR.Close()
		inW.Close()
		return fmt.Errorf("create output queue: %w", err)
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), EnvTarget+"="+p.target)
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		inR.Close()
		inW.Close()
		outR.Close()
		outW.Close()
		return fmt.Errorf("start worker %s: %w", p.target, err)
	}
	// The child holds its own copies; EOF on outR now means the child is gone.
	inR.Close()
	outW.Close()

	p.started = true
	p.cmd = cmd
	p.input = inW
	p.inputEnc = json.NewEncoder(inW)
	p.output = outR

	if err := p.inputEnc.Encode(frame{Kind: KindArgs, Payload: argsPayload}); err != nil {
		p.logger.Warn("worker argument delivery failed", logging.Error(err))
	}

	p.logger.Debug("worker process started", logging.Int("pid", cmd.Process.Pid))

	go p.read(outR)
	go p.wait()
	p.releaseCtx = context.AfterFunc(ctx, p.Stop)
	return nil
}

// Send puts v on the child's input queue.
func (p *Process) Send(v any) error {
	payload, err := encodePayload(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrNotStarted
	}
	if p.input == nil {
		return fmt.Errorf("worker %s: input queue closed", p.target)
	}
	return p.inputEnc.Encode(frame{Kind: KindMessage, Payload: payload})
}

// CloseInput closes the input queue; the child's Receive returns io.EOF.
func (p *Process) CloseInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrNotStarted
	}
	return p.closeInputLocked()
}

func (p *Process) closeInputLocked() error {
	if p.input == nil {
		return nil
	}
	err := p.input.Close()
	p.input = nil
	return err
}

// Stop kills the child's whole process group. Frames already written are
// still delivered, followed by an injected terminated frame when the child
// never sent one. Stop before Start is a no-op.
func (p *Process) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.stopped {
		return
	}
	p.stopped = true
	_ = p.closeInputLocked()
	select {
	case <-p.exited:
		return
	default:
	}
	pid := p.cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		p.logger.Debug("process group kill failed, killing leader", logging.Error(err))
		_ = p.cmd.Process.Kill()
	}
	p.logger.Debug("worker process killed", logging.Int("pid", pid))
}

// IsAlive reports whether the child process is running.
func (p *Process) IsAlive() bool {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Join waits until the child has exited and its output queue has been drained
// to the terminal frame. It returns errors raised by callbacks, the child's
// first reported error when no OnError callback was set, and abnormal exits
// not caused by Stop.
func (p *Process) Join(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	for _, ch := range []chan struct{}{p.exited, p.drained} {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.releaseCtx != nil {
		p.releaseCtx()
		p.releaseCtx = nil
	}
	var errs []error
	errs = append(errs, p.dispatchErr...)
	if p.remoteErr != nil {
		errs = append(errs, p.remoteErr)
	}
	if p.waitErr != nil && !p.stopped {
		errs = append(errs, fmt.Errorf("worker %s exited abnormally: %w", p.target, p.waitErr))
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.waitErr = err
	_ = p.closeInputLocked()
	p.mu.Unlock()
	close(p.exited)
}

func (p *Process) read(r *os.File) {
	defer close(p.drained)
	defer r.Close()

	dec := json.NewDecoder(r)
	for {
		var f frame
		if err := dec.Decode(&f); err != nil {
			if !errors.Is(err, io.EOF) && !p.isStopped() {
				p.logger.Warn("worker output queue unreadable", logging.Error(err))
			}
			break
		}
		if p.dispatch(f) {
			// Keep the pipe open until the child exits so late writes
			// do not kill it with SIGPIPE.
			_, _ = io.Copy(io.Discard, r)
			return
		}
	}
	p.dispatch(frame{Kind: KindTerminated})
}

func (p *Process) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// dispatch hands one frame to its callback and reports whether it was the
// terminal frame.
func (p *Process) dispatch(f frame) (terminal bool) {
	terminal = f.terminal()
	defer func() {
		if r := recover(); r != nil {
			err := &DispatchError{Kind: f.Kind, Value: r, Stack: string(debug.Stack())}
			p.mu.Lock()
			p.dispatchErr = append(p.dispatchErr, err)
			p.mu.Unlock()
			logging.ErrorWithContext(p.logger, "worker callback panicked", "daemonproc_dispatch_panic",
				logging.String("frame", string(f.Kind)),
				logging.Error(err))
		}
	}()

	cb := p.callbacks
	switch f.Kind {
	case KindInit:
		if cb.OnInit != nil {
			cb.OnInit(f.Payload)
		}
	case KindInfo:
		if cb.OnInfo != nil {
			cb.OnInfo(f.Payload)
		}
	case KindError:
		remote := f.Error
		if remote == nil {
			remote = &RemoteError{Kind: "unknown", Message: "worker reported an error without details"}
		}
		if cb.OnError != nil {
			cb.OnError(remote)
			return terminal
		}
		p.mu.Lock()
		if p.remoteErr == nil {
			p.remoteErr = remote
		}
		p.mu.Unlock()
	case KindResult:
		if cb.OnResult != nil {
			cb.OnResult(f.Payload)
		}
	case KindTerminated:
		if cb.OnResult != nil {
			cb.OnResult(nil)
		}
	default:
		p.logger.Debug("ignoring unknown worker frame", logging.String("frame", string(f.Kind)))
	}
	return terminal
}
