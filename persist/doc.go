// Package persist stores collections snapshots: a CBOR envelope for files
// and streams, and SQLite-backed save slots.
package persist
