// Package collections implements a thread-safe, manually reference-counted
// store of container objects.
//
// This package contains:
//   - Value, a tagged union over None, Integer, Real, Form, Object and String
//   - Array, Map and FormMap containers with per-object reader/writer locks
//   - Registry, mapping handles to live objects
//   - AutoreleaseQueue, which releases handed-off references after a grace period
//   - Snapshot and Restore, the save and load primitives of a Store
package collections
