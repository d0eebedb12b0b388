package mediainfo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"releasekit/internal/job"
	"releasekit/internal/jobcache"
	"releasekit/internal/media/ffprobe"
	"releasekit/internal/services"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProber struct {
	calls  atomic.Int32
	path   atomic.Value
	result ffprobe.Result
	err    error
	block  bool
}

func (f *fakeProber) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	f.calls.Add(1)
	f.path.Store(path)
	if f.block {
		<-ctx.Done()
		return ffprobe.Result{}, ctx.Err()
	}
	return f.result, f.err
}

func sampleResult() ffprobe.Result {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{
			{Index: 0, CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080},
			{Index: 1, CodecType: "audio", CodecName: "ac3", Channels: 6},
		},
		Format: ffprobe.Format{FormatName: "matroska", Duration: "60"},
	}
}

func writeRelease(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, size := range map[string]int{"sample.mkv": 10, "movie.mkv": 100, "info.nfo": 1000} {
		if err := os.WriteFile(filepath.Join(root, name), make([]byte, size), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func run(t *testing.T, j *job.Job) {
	t.Helper()
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Wait(ctx); err != nil && ctx.Err() != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestSummarizesMainVideo(t *testing.T) {
	content := writeRelease(t)
	prober := &fakeProber{result: sampleResult()}
	store := jobcache.New(t.TempDir(), nil)
	j, err := New(job.Options{Cache: store}, Options{Content: content, Prober: prober})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run(t, j)

	if code, ok := j.ExitCode(); !ok || code != 0 {
		t.Fatalf("exit code = %d, %v; errors %v fatal %v", code, ok, j.Errors(), j.Fatal())
	}
	if got := prober.path.Load().(string); got != filepath.Join(content, "movie.mkv") {
		t.Fatalf("probed %s", got)
	}
	out := j.Output()
	if len(out) != 3 || !strings.HasPrefix(out[0], "Container: matroska, duration 0:01:00") {
		t.Fatalf("output = %v", out)
	}

	again, err := New(job.Options{Cache: store}, Options{Content: content, Prober: prober})
	if err != nil {
		t.Fatal(err)
	}
	run(t, again)
	if !again.FromCache() || prober.calls.Load() != 1 {
		t.Fatalf("second run not served from cache (calls=%d)", prober.calls.Load())
	}
}

func TestMissingVideoIsFatal(t *testing.T) {
	content := t.TempDir()
	j, err := New(job.Options{}, Options{Content: content, Prober: &fakeProber{}})
	if err != nil {
		t.Fatal(err)
	}
	run(t, j)
	if !errors.Is(j.Fatal(), services.ErrNotFound) {
		t.Fatalf("fatal = %v", j.Fatal())
	}
	if code, _ := j.ExitCode(); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestNoVideoStreamIsReported(t *testing.T) {
	content := writeRelease(t)
	prober := &fakeProber{result: ffprobe.Result{Format: ffprobe.Format{FormatName: "matroska"}}}
	j, err := New(job.Options{}, Options{Content: content, Prober: prober})
	if err != nil {
		t.Fatal(err)
	}
	run(t, j)
	if len(j.Errors()) != 1 || len(j.Output()) != 1 {
		t.Fatalf("errors %v output %v", j.Errors(), j.Output())
	}
	if code, _ := j.ExitCode(); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestStopInterruptsProbe(t *testing.T) {
	content := writeRelease(t)
	prober := &fakeProber{block: true}
	j, err := New(job.Options{}, Options{Content: content, Prober: prober})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for prober.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	j.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	// The probe goroutine exits once the thread's context is canceled.
	h := j.Handler().(*Handler)
	if err := h.thread.Join(ctx); err == nil {
		t.Fatal("expected canceled probe error")
	}
}

func TestRequiresContent(t *testing.T) {
	if _, err := New(job.Options{}, Options{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("New = %v", err)
	}
}
