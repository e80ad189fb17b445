//go:build !deadlock

package collections

import "sync"

// rwLock is the per-object lock. Build with -tags deadlock to swap in a
// lock-order checking implementation.
type rwLock = sync.RWMutex
