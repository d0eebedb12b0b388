// Package tmdb provides the minimal TMDB API client used by the search job.
//
// It exposes movie, TV, and multi search with an optional year filter.
// Requests go through a caller-supplied *http.Client so lookups can be served
// from the release cache.
package tmdb
