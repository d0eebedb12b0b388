package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"releasekit/internal/job"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type producer struct {
	lines []string
}

func (p *producer) Initialize(*job.Job) error { return nil }

func (p *producer) Execute(_ context.Context, j *job.Job) error {
	for _, line := range p.lines {
		if err := j.Send(line); err != nil {
			return err
		}
	}
	j.Finish()
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
	reject string
}

func (s *recordingSink) Initialize(*job.Job) error { return nil }

func (s *recordingSink) Execute(context.Context, *job.Job) error { return nil }

func (s *recordingSink) PipeInput(j *job.Job, value string) error {
	if value == s.reject {
		return errors.New("rejected")
	}
	s.mu.Lock()
	s.events = append(s.events, "add:"+value)
	s.mu.Unlock()
	return j.Send(value)
}

func (s *recordingSink) PipeClosed(j *job.Job) error {
	s.mu.Lock()
	s.events = append(s.events, "finalize")
	s.mu.Unlock()
	j.Finish()
	return nil
}

func mustJob(t *testing.T, name string, h job.Handler) *job.Job {
	t.Helper()
	j, err := job.New(job.Options{Name: name}, h)
	if err != nil {
		t.Fatalf("job.New(%s): %v", name, err)
	}
	return j
}

func waitAll(t *testing.T, jobs ...*job.Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, j := range jobs {
		if err := j.Wait(ctx); err != nil {
			t.Fatalf("wait %s: %v", j.Name(), err)
		}
	}
}

func TestPipeDeliversInOrderThenFinalizes(t *testing.T) {
	up := mustJob(t, "a", &producer{lines: []string{"x", "y"}})
	sink := &recordingSink{}
	down := mustJob(t, "b", sink)
	if err := Pipe(up, down); err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	if err := down.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := up.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitAll(t, up, down)

	if got := strings.Join(sink.events, ","); got != "add:x,add:y,finalize" {
		t.Fatalf("events = %s", got)
	}
	if code, _ := down.ExitCode(); code != 0 {
		t.Fatalf("downstream exit code %d", code)
	}
}

func TestPipeReportsRejectedInput(t *testing.T) {
	up := mustJob(t, "a", &producer{lines: []string{"good", "bad"}})
	down := mustJob(t, "b", &recordingSink{reject: "bad"})
	if err := Pipe(up, down); err != nil {
		t.Fatal(err)
	}
	_ = up.Start(context.Background())
	waitAll(t, up, down)
	if errs := down.Errors(); len(errs) != 1 || !strings.Contains(errs[0].Error(), "rejected") {
		t.Fatalf("downstream errors = %v", errs)
	}
}

func TestPipeIntoUnsupportedJobFailsDownstream(t *testing.T) {
	up := mustJob(t, "a", &producer{lines: []string{"x"}})
	down := mustJob(t, "b", &producer{})
	if err := Pipe(up, down); err != nil {
		t.Fatal(err)
	}
	_ = up.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := down.Wait(ctx); !errors.Is(err, job.ErrPipeUnsupported) {
		t.Fatalf("downstream Wait = %v", err)
	}
}

func TestForward(t *testing.T) {
	up := mustJob(t, "a", &producer{lines: []string{"1", "2"}})
	var seen []string
	if err := Forward(up, job.SignalOutput, func(args ...any) { seen = append(seen, args[0].(string)) }); err != nil {
		t.Fatal(err)
	}
	if err := Forward(up, "bogus", func(...any) {}); err == nil {
		t.Fatal("Forward accepted an unknown signal")
	}
	_ = up.Start(context.Background())
	waitAll(t, up)
	if fmt.Sprint(seen) != "[1 2]" {
		t.Fatalf("seen %v", seen)
	}
}

// queueSink is a downstream handler backed by a Queue.
type queueSink struct {
	queue  *Queue
	mu     sync.Mutex
	events []string
}

func (s *queueSink) Initialize(j *job.Job) error {
	s.queue = NewQueue(QueueOptions{
		Name: j.Name(),
		Process: func(_ context.Context, value string) error {
			if value == "boom" {
				panic("boom")
			}
			s.mu.Lock()
			s.events = append(s.events, "add:"+value)
			s.mu.Unlock()
			return j.Send(value)
		},
		OnError: func(value string, err error) { _ = j.Error(fmt.Errorf("%s: %w", value, err)) },
		OnDrained: func() {
			s.mu.Lock()
			s.events = append(s.events, "finalize")
			s.mu.Unlock()
			j.Finish()
		},
	})
	return nil
}

func (s *queueSink) Execute(ctx context.Context, _ *job.Job) error {
	return s.queue.Start(ctx)
}

func (s *queueSink) PipeInput(_ *job.Job, value string) error { return s.queue.Add(value) }

func (s *queueSink) PipeClosed(*job.Job) error { return s.queue.Finalize() }

func (s *queueSink) Stop(*job.Job) { s.queue.Stop() }

func TestQueueProcessesInOrderUntilSentinel(t *testing.T) {
	lines := make([]string, 50)
	for i := range lines {
		lines[i] = fmt.Sprint(i)
	}
	up := mustJob(t, "a", &producer{lines: lines})
	sink := &queueSink{}
	down := mustJob(t, "b", sink)
	if err := Pipe(up, down); err != nil {
		t.Fatal(err)
	}
	// Upstream runs first; items queued before the worker starts are kept.
	_ = up.Start(context.Background())
	_ = down.Start(context.Background())
	waitAll(t, up, down)
	if err := sink.queue.Join(context.Background()); err != nil {
		t.Fatalf("queue Join: %v", err)
	}

	if len(sink.events) != 51 || sink.events[50] != "finalize" {
		t.Fatalf("events = %v", sink.events)
	}
	for i := 0; i < 50; i++ {
		if sink.events[i] != "add:"+lines[i] {
			t.Fatalf("event %d = %s", i, sink.events[i])
		}
	}
	if sink.queue.Processed() != 50 {
		t.Fatalf("processed %d", sink.queue.Processed())
	}
	if err := sink.queue.Add("late"); err == nil {
		t.Fatal("Add after Finalize accepted")
	}
}

func TestQueueProcessPanicIsReported(t *testing.T) {
	up := mustJob(t, "a", &producer{lines: []string{"ok", "boom", "after"}})
	sink := &queueSink{}
	down := mustJob(t, "b", sink)
	if err := Pipe(up, down); err != nil {
		t.Fatal(err)
	}
	_ = down.Start(context.Background())
	_ = up.Start(context.Background())
	waitAll(t, up, down)
	if err := sink.queue.Join(context.Background()); err != nil {
		t.Fatalf("queue Join: %v", err)
	}
	if fmt.Sprint(down.Output()) != "[ok after]" {
		t.Fatalf("output = %v", down.Output())
	}
	if errs := down.Errors(); len(errs) != 1 || !strings.HasPrefix(errs[0].Error(), "boom:") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestQueueStopFinishesJob(t *testing.T) {
	sink := &queueSink{}
	down := mustJob(t, "b", sink)
	if err := down.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	down.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.queue.Join(ctx); err != nil {
		t.Fatalf("queue Join: %v", err)
	}
	if !down.IsFinished() {
		t.Fatal("job not finished after Stop")
	}
}
