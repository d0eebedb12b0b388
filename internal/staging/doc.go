// Package staging manages the per-release working directories that jobs
// write intermediate files into, such as screenshots waiting for upload.
//
// Each release gets one directory under a root; the cache prune command
// removes directories that have not been touched for a while.
package staging
