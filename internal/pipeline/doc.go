// Package pipeline starts a set of jobs, waits for all of them, and reduces
// their exit codes to one process exit status.
//
// Disabled jobs (Job.Enabled reports false) are neither started, waited on,
// nor counted. The first enabled job in list order with a non-zero exit code
// decides the result, and every failed enabled job has its errors printed.
package pipeline
