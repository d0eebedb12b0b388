package services

import "context"

type contextKey string

const (
	runIDKey   contextKey = "run_id"
	jobKey     contextKey = "job"
	trackerKey contextKey = "tracker"
)

// WithRunID annotates context with the run correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run correlation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithJob annotates context with the job name.
func WithJob(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, jobKey, name)
}

// JobFromContext returns the job name if present.
func JobFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(jobKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithTracker annotates context with the tracker the run submits to.
func WithTracker(ctx context.Context, tracker string) context.Context {
	if tracker == "" {
		return ctx
	}
	return context.WithValue(ctx, trackerKey, tracker)
}

// TrackerFromContext returns the tracker name if present.
func TrackerFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(trackerKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}
