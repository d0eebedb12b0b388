package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"releasekit/internal/logs"
)

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releasekit.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\npartial"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != int64(len("a\nb\nc\n")) {
		t.Fatalf("offset = %d, partial line should not be consumed", offset)
	}
}

func TestLastShortAndMissingFiles(t *testing.T) {
	dir := t.TempDir()
	lines, offset, err := logs.Last(filepath.Join(dir, "missing.log"), 5)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("missing file: %v %v %v", lines, offset, err)
	}

	path := filepath.Join(dir, "short.log")
	if err := os.WriteFile(path, []byte("only\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lines, _, err = logs.Last(path, 5)
	if err != nil || len(lines) != 1 || lines[0] != "only" {
		t.Fatalf("short file: %#v %v", lines, err)
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func waitFor(t *testing.T, c *collector, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines, have %#v", n, c.snapshot())
	return nil
}

func appendLog(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestFollowEmitsAppendedLinesAndSurvivesTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "releasekit.log")
	appendLog(t, path, "start\n")
	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := &collector{}
	done := make(chan error, 1)
	go func() { done <- logs.Follow(ctx, path, offset, 10*time.Millisecond, got.add) }()

	appendLog(t, path, "later\nhalf")
	waitFor(t, got, 1)
	appendLog(t, path, "-done\n")
	waitFor(t, got, 2)

	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lines := waitFor(t, got, 3)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}

	want := []string{"later", "half-done", "new"}
	for i, w := range want {
		if lines[i] != w {
			t.Fatalf("lines = %#v, want %#v", lines, want)
		}
	}
}

func TestMatchRun(t *testing.T) {
	line := `12:00:00.000 INFO job started run_id=abc-123 job=torrent`
	if !logs.MatchRun(line, "abc-123") || !logs.MatchRun(line, "") || logs.MatchRun(line, "zzz") {
		t.Fatal("unexpected run match result")
	}
}
