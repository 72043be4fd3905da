// Package boltdb stores objects in a single BBolt database file.
//
// Database structure uses three buckets:
//   - config: format version and creation time
//   - index: one JSON record per object (name, size, modification time)
//   - blobs: object contents
//
// Existence is decided by the index bucket, so empty objects are distinct
// from missing ones. Every operation is one BBolt transaction: an update
// either rewrites both blob and record or neither.
//
// BBolt holds an exclusive file lock, so one process at a time may open a
// database. Compact rewrites the file to reclaim space left by deletes.
package boltdb
