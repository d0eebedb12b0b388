package submit

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"releasekit/internal/job"
	"releasekit/internal/services"
)

// lines is a handler that sends fixed output, or fails, when released.
type lines struct {
	out     []string
	fail    string
	release chan struct{}
}

func (l *lines) Initialize(*job.Job) error { return nil }

func (l *lines) Execute(_ context.Context, j *job.Job) error {
	go func() {
		if l.release != nil {
			<-l.release
		}
		for _, line := range l.out {
			_ = j.Send(line)
		}
		if l.fail != "" {
			_ = j.Error(l.fail)
		}
		j.Finish()
	}()
	return nil
}

func dep(t *testing.T, name string, h *lines, enabled func() bool) *job.Job {
	t.Helper()
	j, err := job.New(job.Options{Name: name, Enabled: enabled}, h)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func writeTorrent(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "release.abc.torrent")
	if err := os.WriteFile(path, []byte("d4:infod4:name1:xee"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func tracker(t *testing.T, status int, reply string, got *Payload) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if got != nil {
			_ = json.Unmarshal(body, got)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(server.Close)
	return server
}

func startAll(t *testing.T, jobs ...*job.Job) {
	t.Helper()
	for _, j := range jobs {
		if err := j.Start(context.Background()); err != nil {
			t.Fatalf("start %s: %v", j.Name(), err)
		}
	}
}

func wait(t *testing.T, j *job.Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Wait(ctx); err != nil && ctx.Err() != nil {
		t.Fatalf("wait %s: %v", j.Name(), err)
	}
}

func TestSubmitsAfterDependencies(t *testing.T) {
	torrentPath := writeTorrent(t)
	release := make(chan struct{})
	torrentJob := dep(t, "torrent", &lines{out: []string{torrentPath}, release: release}, nil)
	mediainfo := dep(t, "mediainfo", &lines{out: []string{"Container: Matroska"}}, nil)
	disabled := dep(t, "screenshots", &lines{fail: "never runs"}, func() bool { return false })

	var got Payload
	server := tracker(t, http.StatusCreated, `{"url":"https://tracker.example/t/1"}`, &got)
	j, err := New(job.Options{}, Options{
		Release: "Some.Movie.2001", Tracker: "abc", APIURL: server.URL, APIKey: "secret",
		Torrent: torrentJob, Dependencies: []*job.Job{mediainfo, disabled},
	})
	if err != nil {
		t.Fatal(err)
	}
	startAll(t, j, torrentJob, mediainfo)
	time.Sleep(20 * time.Millisecond)
	if j.IsFinished() {
		t.Fatal("submit finished before its dependencies")
	}
	close(release)
	wait(t, j)

	if code, _ := j.ExitCode(); code != 0 {
		t.Fatalf("exit code = %d; errors %v fatal %v", code, j.Errors(), j.Fatal())
	}
	if out := j.Output(); len(out) != 1 || out[0] != "https://tracker.example/t/1" {
		t.Fatalf("output = %v", out)
	}
	if got.Name != "Some.Movie.2001" || got.Tracker != "abc" {
		t.Fatalf("payload = %+v", got)
	}
	if decoded, _ := base64.StdEncoding.DecodeString(got.Torrent); string(decoded) != "d4:infod4:name1:xee" {
		t.Fatalf("torrent = %q", decoded)
	}
	if _, ok := got.Outputs["screenshots"]; ok {
		t.Fatal("disabled dependency included")
	}
	if got.Outputs["mediainfo"][0] != "Container: Matroska" {
		t.Fatalf("outputs = %v", got.Outputs)
	}
}

func TestFailedDependencyBlocksSubmit(t *testing.T) {
	var posts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
	}))
	defer server.Close()

	torrentJob := dep(t, "torrent", &lines{out: []string{writeTorrent(t)}}, nil)
	broken := dep(t, "mediainfo", &lines{fail: "ffprobe missing"}, nil)
	j, err := New(job.Options{}, Options{
		Release: "x", APIURL: server.URL, Torrent: torrentJob, Dependencies: []*job.Job{broken},
	})
	if err != nil {
		t.Fatal(err)
	}
	startAll(t, torrentJob, broken, j)
	wait(t, j)
	if errs := j.Errors(); len(errs) != 1 || !strings.Contains(errs[0].Error(), "Mediainfo failed") {
		t.Fatalf("errors = %v", errs)
	}
	if posts.Load() != 0 {
		t.Fatal("submitted despite failed dependency")
	}
	if code, _ := j.ExitCode(); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestPrepareRunsOnceForConcurrentCallers(t *testing.T) {
	torrentPath := writeTorrent(t)
	torrentJob := dep(t, "torrent", &lines{out: []string{torrentPath}}, nil)
	j, err := New(job.Options{}, Options{Release: "x", APIURL: "http://127.0.0.1:1", Torrent: torrentJob})
	if err != nil {
		t.Fatal(err)
	}
	h := j.Handler().(*Handler)
	startAll(t, torrentJob)

	var wg sync.WaitGroup
	payloads := make([]Payload, 8)
	for i := range payloads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, failed, err := h.Prepare(context.Background())
			if err != nil || len(failed) != 0 {
				t.Errorf("Prepare: %v %v", failed, err)
			}
			payloads[i] = p
		}()
	}
	wg.Wait()
	for _, p := range payloads {
		if p.Torrent == "" || p.Torrent != payloads[0].Torrent {
			t.Fatalf("payloads differ: %+v", payloads)
		}
	}
	if !h.once.Done() {
		t.Fatal("once guard not marked done")
	}
}

func TestTrackerRejection(t *testing.T) {
	server := tracker(t, http.StatusBadRequest, `{"error":"duplicate release"}`, nil)
	torrentJob := dep(t, "torrent", &lines{out: []string{writeTorrent(t)}}, nil)
	j, err := New(job.Options{}, Options{Release: "x", APIURL: server.URL, APIKey: "secret", Torrent: torrentJob})
	if err != nil {
		t.Fatal(err)
	}
	startAll(t, torrentJob, j)
	wait(t, j)
	if !errors.Is(j.Fatal(), services.ErrExternalTool) || !strings.Contains(j.Fatal().Error(), "duplicate release") {
		t.Fatalf("fatal = %v", j.Fatal())
	}
}

func TestValidation(t *testing.T) {
	torrentJob := dep(t, "torrent", &lines{}, nil)
	cases := map[string]Options{
		"release": {APIURL: "http://x", Torrent: torrentJob},
		"api url": {Release: "x", Torrent: torrentJob},
		"torrent": {Release: "x", APIURL: "http://x"},
	}
	for name, opts := range cases {
		if _, err := New(job.Options{}, opts); err == nil {
			t.Errorf("%s: New succeeded", name)
		}
	}
}
