//go:build deadlock

package collections

import "github.com/sasha-s/go-deadlock"

// rwLock reports lock-order inversions and long waits between object locks.
type rwLock = deadlock.RWMutex
