package job

import (
	"context"
	"errors"
	"sync"
)

var errOncePanicked = errors.New("once-guarded function panicked")

// ErrOnceReentered is returned when fn calls Do on the same Once through the
// context it was given.
var ErrOnceReentered = errors.New("once-guarded function called itself")

type onceKey struct{ o *Once }

// Once runs a function exactly once and hands its error to every caller.
// Composite jobs that wait on several upstream jobs from more than one place
// use it to guard their one-time work. Unlike sync.Once the guard is released
// when fn panics, and the panic is not retried.
//
// fn receives a context marked with this Once. A nested Do that passes that
// context returns ErrOnceReentered instead of waiting on itself.
type Once struct {
	mu      sync.Mutex
	started bool
	done    chan struct{}
	err     error
}

// Do calls fn if no earlier call has, and returns fn's error. Callers that
// arrive while fn runs wait for it or for ctx.
func (o *Once) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(onceKey{o}) != nil {
		return ErrOnceReentered
	}
	o.mu.Lock()
	if o.done == nil {
		o.done = make(chan struct{})
	}
	done := o.done
	if o.started {
		o.mu.Unlock()
		select {
		case <-done:
			return o.result()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	o.started = true
	o.mu.Unlock()

	err := errOncePanicked
	defer func() {
		o.mu.Lock()
		o.err = err
		o.mu.Unlock()
		close(done)
	}()
	err = fn(context.WithValue(ctx, onceKey{o}, true))
	return err
}

// Done reports whether fn has returned.
func (o *Once) Done() bool {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (o *Once) result() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
