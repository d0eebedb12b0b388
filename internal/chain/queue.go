package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"releasekit/internal/daemonthread"
	"releasekit/internal/logging"
)

// QueueOptions configures a Queue.
type QueueOptions struct {
	Name   string
	Logger *slog.Logger
	// Process handles one value on the queue's worker thread.
	Process func(ctx context.Context, value string) error
	// OnError receives Process failures, including panics. The queue keeps
	// draining.
	OnError func(value string, err error)
	// OnDrained runs on the worker thread once the sentinel is reached or
	// the queue is stopped.
	OnDrained func()
}

type queueItem struct {
	value    string
	sentinel bool
}

// Queue is a FIFO drained one item per work step by a daemon thread.
type Queue struct {
	opts   QueueOptions
	thread *daemonthread.Thread
	logger *slog.Logger

	mu        sync.Mutex
	items     []queueItem
	finalized bool
	processed int
}

// NewQueue returns an unstarted queue.
func NewQueue(opts QueueOptions) *Queue {
	q := &Queue{opts: opts}
	q.logger = logging.NewComponentLogger(opts.Logger, "chain").With(logging.String("queue", opts.Name))
	q.thread = daemonthread.New(opts.Name, daemonthread.Funcs{
		WorkFunc:      q.work,
		TerminateFunc: q.terminate,
	}, daemonthread.WithLogger(opts.Logger))
	return q
}

// Start launches the worker thread.
func (q *Queue) Start(ctx context.Context) error {
	if q.opts.Process == nil {
		return fmt.Errorf("queue %s: no process function", q.opts.Name)
	}
	if err := q.thread.Start(ctx); err != nil {
		return err
	}
	q.mu.Lock()
	pending := len(q.items) > 0
	q.mu.Unlock()
	if pending {
		return q.thread.Unblock()
	}
	return nil
}

// Add enqueues value and wakes the worker.
func (q *Queue) Add(value string) error {
	return q.push(queueItem{value: value})
}

// Finalize enqueues the sentinel. Values added later are rejected.
func (q *Queue) Finalize() error {
	return q.push(queueItem{sentinel: true})
}

func (q *Queue) push(item queueItem) error {
	q.mu.Lock()
	if q.finalized {
		q.mu.Unlock()
		return fmt.Errorf("queue %s: already finalized", q.opts.Name)
	}
	q.items = append(q.items, item)
	if item.sentinel {
		q.finalized = true
	}
	q.mu.Unlock()
	// Items pushed before Start are picked up by Start.
	if err := q.thread.Unblock(); err != nil && !errors.Is(err, daemonthread.ErrNotStarted) {
		return err
	}
	return nil
}

// Stop abandons queued items and stops the worker.
func (q *Queue) Stop() {
	q.thread.Stop()
}

// Join waits for the worker to exit.
func (q *Queue) Join(ctx context.Context) error {
	return q.thread.Join(ctx)
}

// Processed returns how many values have been handled.
func (q *Queue) Processed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processed
}

func (q *Queue) pop() (queueItem, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return queueItem{}, false, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true, len(q.items) > 0
}

func (q *Queue) work(ctx context.Context) (bool, error) {
	item, ok, more := q.pop()
	if !ok {
		return false, nil
	}
	if item.sentinel {
		q.logger.Debug("queue drained", logging.Int("processed", q.Processed()))
		q.thread.Stop()
		return false, nil
	}
	if err := q.process(ctx, item.value); err != nil && q.opts.OnError != nil {
		q.opts.OnError(item.value, err)
	}
	q.mu.Lock()
	q.processed++
	q.mu.Unlock()
	return more, nil
}

func (q *Queue) process(ctx context.Context, value string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &daemonthread.PanicError{Step: "process", Value: r, Stack: string(debug.Stack())}
		}
	}()
	return q.opts.Process(ctx, value)
}

func (q *Queue) terminate(context.Context) error {
	if q.opts.OnDrained != nil {
		q.opts.OnDrained()
	}
	return nil
}
