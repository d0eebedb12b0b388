// Package logs reads the releasekit log file for the logs command: the last
// N lines, and a polling follow that survives truncation.
package logs
