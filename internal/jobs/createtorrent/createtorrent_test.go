package createtorrent

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"releasekit/internal/daemonproc"
	"releasekit/internal/job"
	"releasekit/internal/jobcache"
	"releasekit/internal/torrent"
)

func TestMain(m *testing.M) {
	daemonproc.RunIfChild()
	os.Exit(m.Run())
}

func writeContent(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "Some.Movie.2001")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "movie.mkv"), make([]byte, 300_000), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "movie.nfo"), []byte("nfo"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func runJob(t *testing.T, j *job.Job) {
	t.Helper()
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := j.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestCreatesTorrentInWorker(t *testing.T) {
	content := writeContent(t)
	outDir := t.TempDir()
	store := jobcache.New(t.TempDir(), nil)
	opts := Options{
		Content:     content,
		Tracker:     "abc",
		AnnounceURL: "https://tracker.example/announce",
		Private:     true,
		Exclude:     []string{"*.nfo"},
		OutputDir:   outDir,
	}
	j, err := New(job.Options{Cache: store}, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var mu sync.Mutex
	var tree *torrent.Plan
	var percents []int
	_ = j.On(SignalFileTree, func(args ...any) {
		mu.Lock()
		defer mu.Unlock()
		tree = args[0].(*torrent.Plan)
	})
	_ = j.OnInfo(func(v any) {
		mu.Lock()
		defer mu.Unlock()
		percents = append(percents, v.(int))
	})
	runJob(t, j)

	if code, _ := j.ExitCode(); code != 0 {
		t.Fatalf("exit code %d, errors %v", code, j.Errors())
	}
	out := j.Output()
	if len(out) != 1 || out[0] != torrent.OutputPath(outDir, content, "abc") {
		t.Fatalf("output = %v", out)
	}
	m, err := torrent.ReadFile(out[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(m.Files) != 1 || !m.Private {
		t.Fatalf("metainfo = %+v", m)
	}
	if tree == nil || len(tree.Files) != 1 {
		t.Fatalf("file tree not delivered: %+v", tree)
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("progress = %v", percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress went backwards: %v", percents)
		}
	}

	again, err := New(job.Options{Cache: store}, opts)
	if err != nil {
		t.Fatal(err)
	}
	runJob(t, again)
	if !again.FromCache() || again.Output()[0] != out[0] {
		t.Fatalf("second run did not replay the cache: %v", again.Output())
	}
}

func TestMissingContentIsFatal(t *testing.T) {
	j, err := New(job.Options{}, Options{Content: filepath.Join(t.TempDir(), "missing"), OutputDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := j.Wait(context.Background()); err == nil {
		t.Fatal("missing content did not fail the job")
	}
}

func TestNewRequiresOutputDir(t *testing.T) {
	if _, err := New(job.Options{}, Options{Content: "x"}); err == nil {
		t.Fatal("missing output directory accepted")
	}
}
