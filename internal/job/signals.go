package job

import (
	"fmt"
	"runtime/debug"

	"releasekit/internal/signal"
)

// PanicError wraps a panic recovered from a handler or listener.
type PanicError struct {
	Where string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Where, e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// On registers fn on a named signal. Unknown names fail with
// signal.ErrUnknownSignal. A panicking listener becomes the job's fatal error
// and the remaining listeners still run.
func (j *Job) On(name signal.Name, fn signal.Callback) error {
	if fn == nil {
		return j.signals.On(name, nil)
	}
	return j.signals.On(name, func(args ...any) {
		defer func() {
			if r := recover(); r != nil {
				j.Exception(&PanicError{
					Where: fmt.Sprintf("%s listener on %s", name, j.name),
					Value: r,
					Stack: string(debug.Stack()),
				})
			}
		}()
		fn(args...)
	})
}

// OnOutput registers fn for every output line.
func (j *Job) OnOutput(fn func(value string)) error {
	return j.On(SignalOutput, func(args ...any) {
		fn(args[0].(string))
	})
}

// OnError registers fn for every reported error.
func (j *Job) OnError(fn func(err error)) error {
	return j.On(SignalError, func(args ...any) {
		fn(args[0].(error))
	})
}

// OnInfo registers fn for progress values.
func (j *Job) OnInfo(fn func(value any)) error {
	return j.On(SignalInfo, func(args ...any) {
		fn(args[0])
	})
}

// OnFinished registers fn to run once the job finishes. fn must not Wait on
// the same job.
func (j *Job) OnFinished(fn func(j *Job)) error {
	return j.On(SignalFinished, func(args ...any) {
		fn(args[0].(*Job))
	})
}

// Emit fires a custom signal registered through Options.Signals.
func (j *Job) Emit(name signal.Name, args ...any) error {
	return j.signals.Emit(name, args...)
}

// Signals lists the job's signal names.
func (j *Job) Signals() []signal.Name {
	return j.signals.Names()
}

func (j *Job) emit(name signal.Name, args ...any) {
	// Built-in signals are always registered.
	_ = j.signals.Emit(name, args...)
}
