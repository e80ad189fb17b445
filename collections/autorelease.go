package collections

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// AutoreleaseQueue: deferred release of handed-off references
// ---------------------------------------------------------------------------

const (
	// DefaultAutoreleaseLifetime is how long a queued reference is kept.
	DefaultAutoreleaseLifetime = 10 * time.Second
	// DefaultAutoreleaseInterval is the worker's scan period.
	DefaultAutoreleaseInterval = 2 * time.Second
)

// AutoreleaseStats describes one scan cycle.
type AutoreleaseStats struct {
	Matured   int // entries that reached the lifetime threshold
	Released  int // matured entries whose object was still alive
	Pending   int // entries left in the queue
	Tick      uint32
	Paused    bool
	Duration  time.Duration
	Timestamp time.Time
}

type autoreleaseEntry struct {
	handle Handle
	tick   uint32
}

// AutoreleaseQueue owns references handed over by Object.Autorelease and
// releases each one once it has aged lifetime/interval ticks. Ages are
// counted in scan ticks, not wall time, so a late wake-up never shortens the
// grace period. A caller that retains the object before the entry matures
// keeps it alive: the queue's release then only drops its own reference.
type AutoreleaseQueue struct {
	registry      *Registry
	interval      time.Duration
	lifetimeTicks uint32

	mu      sync.Mutex // guards entries, tick and paused
	entries []autoreleaseEntry
	tick    uint32
	paused  bool

	lifecycle sync.Mutex // protects start/stop
	stop      chan struct{}
	stopped   chan struct{}

	scanCount atomic.Uint64
	lastStats atomic.Pointer[AutoreleaseStats]
}

// NewAutoreleaseQueue creates a stopped queue releasing through registry.
// Non-positive durations select the defaults.
func NewAutoreleaseQueue(registry *Registry, lifetime, interval time.Duration) *AutoreleaseQueue {
	if lifetime <= 0 {
		lifetime = DefaultAutoreleaseLifetime
	}
	if interval <= 0 {
		interval = DefaultAutoreleaseInterval
	}
	ticks := uint32(lifetime / interval)
	if ticks == 0 {
		ticks = 1
	}
	return &AutoreleaseQueue{
		registry:      registry,
		interval:      interval,
		lifetimeTicks: ticks,
	}
}

// Push queues h at the current tick.
func (q *AutoreleaseQueue) Push(h Handle) {
	q.mu.Lock()
	q.entries = append(q.entries, autoreleaseEntry{handle: h, tick: q.tick})
	q.mu.Unlock()
}

// Count returns the number of queued entries.
func (q *AutoreleaseQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Tick returns the current logical tick.
func (q *AutoreleaseQueue) Tick() uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tick
}

// LifetimeTicks returns the age at which an entry matures.
func (q *AutoreleaseQueue) LifetimeTicks() uint32 { return q.lifetimeTicks }

// Interval returns the scan period.
func (q *AutoreleaseQueue) Interval() time.Duration { return q.interval }

// SetPaused suspends or resumes scanning. While paused the worker keeps
// waking up but neither releases anything nor advances the tick.
func (q *AutoreleaseQueue) SetPaused(paused bool) {
	q.mu.Lock()
	q.paused = paused
	q.mu.Unlock()
}

// Paused reports whether scanning is suspended.
func (q *AutoreleaseQueue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// ScanCount returns the number of completed (unpaused) scans.
func (q *AutoreleaseQueue) ScanCount() uint64 {
	return q.scanCount.Load()
}

// LastStats returns the statistics of the most recent unpaused scan, or nil.
func (q *AutoreleaseQueue) LastStats() *AutoreleaseStats {
	return q.lastStats.Load()
}

// ScanNow runs one scan cycle on the calling goroutine.
func (q *AutoreleaseQueue) ScanNow() *AutoreleaseStats {
	return q.cycle()
}

// Start launches the worker. Calling Start on a running queue does nothing.
func (q *AutoreleaseQueue) Start() {
	q.lifecycle.Lock()
	defer q.lifecycle.Unlock()

	if q.stop != nil {
		return
	}
	q.stop = make(chan struct{})
	q.stopped = make(chan struct{})

	stopCh := q.stop
	stoppedCh := q.stopped
	go q.loop(stopCh, stoppedCh)
	autoreleaseLog.Infof("autorelease worker started (interval %s, lifetime %d ticks)", q.interval, q.lifetimeTicks)
}

// Stop halts the worker and waits for it to exit; no release happens after
// Stop returns. It is safe to call on a queue that was never started.
func (q *AutoreleaseQueue) Stop() {
	q.lifecycle.Lock()
	stopCh := q.stop
	stoppedCh := q.stopped
	q.stop = nil
	q.stopped = nil
	q.lifecycle.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
		autoreleaseLog.Info("autorelease worker stopped")
	}
}

// Running reports whether the worker is active.
func (q *AutoreleaseQueue) Running() bool {
	q.lifecycle.Lock()
	defer q.lifecycle.Unlock()
	return q.stop != nil
}

func (q *AutoreleaseQueue) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			q.cycle()
		}
	}
}

// cycle partitions matured entries out under the lock, advances the tick,
// then releases the matured handles with no lock held.
func (q *AutoreleaseQueue) cycle() *AutoreleaseStats {
	start := time.Now()

	q.mu.Lock()
	if q.paused {
		tick := q.tick
		q.mu.Unlock()
		return &AutoreleaseStats{Paused: true, Tick: tick, Timestamp: start}
	}

	var matured []Handle
	kept := q.entries[:0]
	for _, e := range q.entries {
		// uint32 subtraction stays correct across tick wraparound
		if q.tick-e.tick >= q.lifetimeTicks {
			matured = append(matured, e.handle)
		} else {
			kept = append(kept, e)
		}
	}
	q.entries = kept
	q.tick++
	stats := &AutoreleaseStats{
		Matured:   len(matured),
		Pending:   len(kept),
		Tick:      q.tick,
		Timestamp: start,
	}
	q.mu.Unlock()

	for _, h := range matured {
		obj := q.registry.Lookup(h)
		if obj == nil {
			autoreleaseLog.Debugf("handle %d already gone", h)
			continue
		}
		obj.Release()
		stats.Released++
		autoreleaseLog.Debugf("handle %d released", h)
	}

	stats.Duration = time.Since(start)
	q.scanCount.Add(1)
	q.lastStats.Store(stats)
	return stats
}

// ---------------------------------------------------------------------------
// Persistence and reset
// ---------------------------------------------------------------------------

func (q *AutoreleaseQueue) snapshot() AutoreleaseRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec := AutoreleaseRecord{Tick: q.tick, Entries: make([]QueueEntryRecord, len(q.entries))}
	for i, e := range q.entries {
		rec.Entries[i] = QueueEntryRecord{Handle: e.handle, Tick: e.tick}
	}
	return rec
}

func (q *AutoreleaseQueue) restore(rec AutoreleaseRecord, keep func(Handle) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tick = rec.Tick
	q.entries = q.entries[:0]
	for _, e := range rec.Entries {
		if keep(e.Handle) {
			q.entries = append(q.entries, autoreleaseEntry{handle: e.Handle, tick: e.Tick})
		}
	}
}

func (q *AutoreleaseQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
	q.tick = 0
}
