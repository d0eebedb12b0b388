// Package chain composes jobs into pipelines through their signals.
//
// Pipe connects an upstream job's output and finished signals to a
// downstream job's PipeInput and PipeClosed. Queue is the usual backing for a
// downstream handler whose per-item work blocks: piped values go onto a FIFO
// drained by a daemonthread.Thread, and closing the pipe enqueues a sentinel
// that stops it once everything before it is processed.
package chain
