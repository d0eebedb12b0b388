package addtorrent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"releasekit/internal/job"
	"releasekit/internal/torrent"
)

func makeTorrent(t *testing.T, dir string) string {
	t.Helper()
	content := filepath.Join(dir, "content.mkv")
	if err := os.WriteFile(content, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "content.torrent")
	if _, err := torrent.Create(context.Background(), torrent.Options{Path: content}, out, nil); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestAddsGivenTorrents(t *testing.T) {
	dir := t.TempDir()
	watch := filepath.Join(dir, "watch")
	good := makeTorrent(t, dir)
	bad := filepath.Join(dir, "bad.torrent")
	if err := os.WriteFile(bad, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	j, err := New(job.Options{}, Options{WatchDir: watch, Torrents: []string{good, bad}})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	out := j.Output()
	if len(out) != 1 || out[0] != filepath.Join(watch, "content.torrent") {
		t.Fatalf("output = %v", out)
	}
	if len(j.Errors()) != 1 {
		t.Fatalf("errors = %v", j.Errors())
	}
	if code, _ := j.ExitCode(); code != 1 {
		t.Fatalf("exit code = %d; a rejected torrent must fail the job", code)
	}
}

func TestPipedMode(t *testing.T) {
	dir := t.TempDir()
	watch := filepath.Join(dir, "watch")
	j, err := New(job.Options{}, Options{WatchDir: watch})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if j.IsFinished() {
		t.Fatal("piped job finished before its pipe closed")
	}
	if err := j.PipeInput(makeTorrent(t, dir)); err != nil {
		t.Fatal(err)
	}
	if err := j.PipeClosed(); err != nil {
		t.Fatal(err)
	}
	if code, ok := j.ExitCode(); !ok || code != 0 {
		t.Fatalf("exit code = %d, %v; errors %v", code, ok, j.Errors())
	}
}

func TestRequiresWatchDir(t *testing.T) {
	if _, err := New(job.Options{}, Options{}); err == nil {
		t.Fatal("missing watch dir accepted")
	}
}
