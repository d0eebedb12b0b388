// Package main hosts the releasekit CLI entrypoint and command graph.
//
// Each command assembles a set of jobs for one release, wires their chains,
// and hands them to the pipeline runner. Configuration, logging, the job
// cache and the HTTP request cache are resolved once per invocation by the
// command context so subcommands only describe which jobs to run.
//
// The same binary doubles as the process-worker child: main checks for a
// worker launch before Cobra parses anything.
package main
