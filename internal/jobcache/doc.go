// Package jobcache persists the output of cleanly finished jobs so a later run
// with the same job name and arguments can replay it instead of redoing the
// work.
//
// Each entry is one JSON file named {name}.{canonical-args}.json holding the
// output lines as an array of strings. Canonical arguments are sorted by name,
// Unicode-normalized, and percent-escaped so the filename is safe and distinct
// per argument set; path arguments are made absolute so relative and absolute
// invocations share an entry. Names that would exceed MaxFileNameLength are cut
// in the middle and tagged with a short digest of the full key.
package jobcache
