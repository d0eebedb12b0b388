package services_test

import (
	"context"
	"testing"

	"releasekit/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-42")
	ctx = services.WithJob(ctx, "torrent")
	ctx = services.WithTracker(ctx, "alpha")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-42" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if name, ok := services.JobFromContext(ctx); !ok || name != "torrent" {
		t.Fatalf("unexpected job: %v %v", name, ok)
	}
	if tracker, ok := services.TrackerFromContext(ctx); !ok || tracker != "alpha" {
		t.Fatalf("unexpected tracker: %v %v", tracker, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJob(ctx, "")
	ctx = services.WithRunID(ctx, "")
	if _, ok := services.JobFromContext(ctx); ok {
		t.Fatal("expected blank job to be ignored")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected blank run id to be ignored")
	}
}
