// Package ffprobe inspects media files with ffprobe and renders the text
// summary published by the mediainfo job.
//
// Prober runs the binary through an Executor so tests can feed canned JSON.
// Result helpers parse the string-typed numeric fields ffprobe emits, and
// Summary formats container, duration and per-stream lines.
package ffprobe
