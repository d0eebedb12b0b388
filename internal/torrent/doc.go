// Package torrent builds BitTorrent v1 metainfo files.
//
// Scan walks the content and applies exclude patterns, Hash computes the
// SHA-1 piece hashes, and Build bencodes the metainfo. The CPU-heavy hashing
// normally runs out of process through the "torrent.create" daemonproc target
// registered by this package.
package torrent
