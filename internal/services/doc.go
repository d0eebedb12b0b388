// Package services defines shared utilities consumed by jobs and their external
// integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, job names, and tracker names for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failures
//     classifiable (validation vs external tool vs transient) across packages.
//
// Use these helpers when wiring new jobs so operational behaviour (error
// reporting, observability) stays uniform across the pipeline.
package services
