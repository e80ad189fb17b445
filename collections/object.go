package collections

import (
	"fmt"
	"math"
	"sync/atomic"
)

// CollectionType tags the concrete kind of a managed object. The codes are
// part of the snapshot format.
type CollectionType uint8

const (
	CollectionTypeNone CollectionType = iota
	CollectionTypeArray
	CollectionTypeMap
	CollectionTypeFormMap
)

func (t CollectionType) String() string {
	switch t {
	case CollectionTypeArray:
		return "array"
	case CollectionTypeMap:
		return "map"
	case CollectionTypeFormMap:
		return "formMap"
	}
	return fmt.Sprintf("CollectionType(%d)", uint8(t))
}

// ObjectState is the lifecycle position of a managed object.
type ObjectState uint32

const (
	StateLive ObjectState = iota
	StateDestroying
	StateReclaimed
)

func (s ObjectState) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateDestroying:
		return "destroying"
	case StateReclaimed:
		return "reclaimed"
	}
	return fmt.Sprintf("ObjectState(%d)", uint32(s))
}

// Object is a reference-counted container owned by a Store. Array, Map and
// FormMap are the only implementations.
type Object interface {
	Handle() Handle
	Type() CollectionType
	Store() *Store

	// Retain adds one owning reference. Retaining a destroyed object panics.
	Retain() Object
	// Release drops one owning reference and destroys the object when the
	// last one goes away.
	Release()
	// Autorelease hands one owning reference to the store's autorelease
	// queue, which releases it after the grace period.
	Autorelease() Object

	RefCount() int32
	IsAlive() bool
	State() ObjectState

	Count() int
	Clear()
	PurgeDeadReferences() int

	base() *objectBase
	// drainReferences empties the container, nullifying object slots in
	// place, and returns the handles whose references must be released.
	// Called with the write lock held.
	drainReferences() []Handle
	// saveRecord fills rec with the raw contents. Called with the read lock held.
	saveRecord(rec *ObjectRecord)
	// loadRecord replaces the raw contents from rec and returns the handles
	// of references it had to drop. Called with the write lock held, before
	// the object is visible to callers.
	loadRecord(rec *ObjectRecord, decode func(ValueRecord) Value) []Handle
	// forEachValue visits every held value. Called with a lock held.
	forEachValue(fn func(v *Value))
}

// refsDestroyed marks a reference count that reached zero through Release.
// No Retain or Release may succeed once it is set.
const refsDestroyed int32 = math.MinInt32

// ---------------------------------------------------------------------------
// objectBase: shared reference counting, locking and teardown
// ---------------------------------------------------------------------------

type objectBase struct {
	store  *Store
	handle Handle
	typ    CollectionType
	self   Object

	refs  atomic.Int32
	state atomic.Uint32

	mu rwLock
}

func (b *objectBase) init(s *Store, self Object, typ CollectionType, owners int32) {
	if owners < 0 {
		panic(fmt.Sprintf("collections: negative owner count %d", owners))
	}
	b.store = s
	b.self = self
	b.typ = typ
	b.refs.Store(owners)
}

func (b *objectBase) base() *objectBase { return b }

// Handle returns the object's handle.
func (b *objectBase) Handle() Handle { return b.handle }

// Type returns the collection type tag.
func (b *objectBase) Type() CollectionType { return b.typ }

// Store returns the owning store.
func (b *objectBase) Store() *Store { return b.store }

// RefCount returns the current number of owning references, 0 once destroyed.
func (b *objectBase) RefCount() int32 {
	n := b.refs.Load()
	if n < 0 {
		return 0
	}
	return n
}

// IsAlive reports whether the object has not started destruction.
func (b *objectBase) IsAlive() bool {
	return b.refs.Load() != refsDestroyed
}

// State returns the lifecycle state.
func (b *objectBase) State() ObjectState {
	return ObjectState(b.state.Load())
}

// Retain implements Object.
func (b *objectBase) Retain() Object {
	b.retain()
	return b.self
}

func (b *objectBase) retain() {
	if !b.tryRetain() {
		panic(fmt.Sprintf("collections: retain of destroyed object %d", b.handle))
	}
}

// tryRetain adds a reference unless the object has been destroyed.
func (b *objectBase) tryRetain() bool {
	for {
		n := b.refs.Load()
		if n < 0 {
			return false
		}
		if n == math.MaxInt32 {
			panic(fmt.Sprintf("collections: reference count overflow on object %d", b.handle))
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release implements Object.
func (b *objectBase) Release() {
	for {
		n := b.refs.Load()
		if n == refsDestroyed {
			panic(fmt.Sprintf("collections: release of destroyed object %d", b.handle))
		}
		if n <= 0 {
			panic(fmt.Sprintf("collections: release of object %d with no owning reference", b.handle))
		}
		if n == 1 {
			if b.refs.CompareAndSwap(1, refsDestroyed) {
				b.destroy()
				return
			}
			continue
		}
		if b.refs.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// Autorelease implements Object.
func (b *objectBase) Autorelease() Object {
	if n := b.refs.Load(); n <= 0 {
		panic(fmt.Sprintf("collections: autorelease of object %d without an owning reference", b.handle))
	}
	b.store.queue.Push(b.handle)
	return b.self
}

// destroy runs once, from the Release that took the count to zero.
func (b *objectBase) destroy() {
	b.state.Store(uint32(StateDestroying))
	b.store.registry.Unregister(b.handle)

	b.mu.Lock()
	released := b.self.drainReferences()
	b.mu.Unlock()

	b.state.Store(uint32(StateReclaimed))
	log.Debugf("object %d (%s) destroyed, releasing %d references", b.handle, b.typ, len(released))

	b.store.releaseHandles(released)
}

// discard tears the object down without running release chains. Used by
// Store.Reset, where every object goes away at once.
func (b *objectBase) discard() {
	b.refs.Store(refsDestroyed)
	b.state.Store(uint32(StateDestroying))
	b.mu.Lock()
	b.self.drainReferences()
	b.mu.Unlock()
	b.state.Store(uint32(StateReclaimed))
}

// ---------------------------------------------------------------------------
// Guarded access
// ---------------------------------------------------------------------------

// write runs fn with the write lock held. References dropped by fn are
// released after the lock is released, so a release chain never holds two
// object locks at once.
func (b *objectBase) write(fn func(released *[]Handle)) {
	var released []Handle
	func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.IsAlive() {
			panic(fmt.Sprintf("collections: mutation of destroyed object %d", b.handle))
		}
		fn(&released)
	}()
	b.store.releaseHandles(released)
}

// read runs fn with the read lock held.
func (b *objectBase) read(fn func()) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn()
}

// PurgeDeadReferences nullifies slots whose target no longer exists. Nothing
// is released: the target already went away. It returns the number of slots
// cleared.
func (b *objectBase) PurgeDeadReferences() int {
	purged := 0
	b.write(func(*[]Handle) {
		b.self.forEachValue(func(v *Value) {
			h, ok := v.Handle()
			if ok && b.store.Lookup(h) == nil {
				v.NullifyObject()
				purged++
			}
		})
	})
	return purged
}

// ownValue retains the target of an Object value being stored into a slot.
// A handle whose target is gone, or goes away before the retain lands,
// collapses to None.
func (s *Store) ownValue(v Value) Value {
	h, ok := v.Handle()
	if !ok {
		return v
	}
	obj := s.Lookup(h)
	if obj == nil || !obj.base().tryRetain() {
		return Value{}
	}
	return v
}

// disown records the reference held by a value leaving a slot.
func disown(v Value, released *[]Handle) {
	if h, ok := v.Handle(); ok {
		*released = append(*released, h)
	}
}
