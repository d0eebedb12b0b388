package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"releasekit/internal/config"
)

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return p
}

func TestCheckResolvesToolsAndVersions(t *testing.T) {
	dir := t.TempDir()
	probe := writeStub(t, dir, "ffprobe", "echo 'ffprobe version 7.1.1 Copyright (c) 2007-2025'\necho 'built with gcc'\n")
	silent := writeStub(t, dir, "silent", "exit 3\n")

	statuses := Check(context.Background(), []Tool{
		{Name: "FFprobe", Command: probe},
		{Name: "Silent", Command: silent},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	})
	if len(statuses) != 4 {
		t.Fatalf("got %d statuses", len(statuses))
	}
	if s := statuses[0]; !s.Found() || s.Path != probe || s.Version != "7.1.1" || s.Problem != "" {
		t.Fatalf("ffprobe status = %#v", s)
	}
	if s := statuses[1]; !s.Found() || s.Version != "" {
		t.Fatalf("a tool without a version is still usable: %#v", s)
	}
	if s := statuses[2]; s.Found() || s.Problem != "not found on PATH" || s.Command != "clearly-not-present-binary" {
		t.Fatalf("missing status = %#v", s)
	}
	if s := statuses[3]; s.Found() || s.Problem != "command not configured" {
		t.Fatalf("blank status = %#v", s)
	}
}

func TestToolsFollowConfig(t *testing.T) {
	cfg := config.Default()
	tools := Tools(&cfg)
	if len(tools) != 2 || tools[0].Command != "ffprobe" || tools[1].Command != "ffmpeg" {
		t.Fatalf("unexpected tools %#v", tools)
	}
	if tools[1].Optional {
		t.Fatal("ffmpeg should be required while screenshots are enabled")
	}
	cfg.Jobs.ScreenshotCount = 0
	if !Tools(&cfg)[1].Optional {
		t.Fatal("ffmpeg should be optional without screenshots")
	}
}

func TestMissingSkipsOptional(t *testing.T) {
	t.Setenv("PATH", "")
	statuses := Check(context.Background(), []Tool{
		{Name: "Required", Command: "ffprobe"},
		{Name: "Optional", Command: "ffmpeg", Optional: true},
	})
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "Required" {
		t.Fatalf("missing = %#v", missing)
	}
}
