// Package notifications reports finished runs via ntfy.
//
// NewService publishes to the topic configured in config.toml and degrades to
// a no-op when no topic is set, so callers never branch on configuration.
package notifications
