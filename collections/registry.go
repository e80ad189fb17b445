package collections

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Handle identifies one managed object for the lifetime of a Store.
type Handle uint32

const (
	// HandleNull is never issued.
	HandleNull Handle = 0

	// MaxHandle is the last handle a Registry will issue. Handles are not
	// reused, so a store that has created this many objects is exhausted.
	MaxHandle Handle = math.MaxUint32
)

// ---------------------------------------------------------------------------
// Registry: handle -> live object
// ---------------------------------------------------------------------------

// Registry maps handles to live objects. Entries are weak: the registry does
// not hold a reference count, it only answers "which object is this handle,
// if it is still alive". All operations take one lock, which is never held
// while an object lock is acquired.
type Registry struct {
	mu      sync.RWMutex
	objects map[Handle]Object
	next    Handle
}

// NewRegistry creates an empty registry. Handles start at 1.
func NewRegistry() *Registry {
	return &Registry{
		objects: make(map[Handle]Object),
		next:    1,
	}
}

// Register allocates a fresh handle for obj, stamps it on the object and
// records it. Running out of handles is a fatal resource exhaustion.
func (r *Registry) Register(obj Object) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next == HandleNull {
		panic("collections: handle space exhausted")
	}
	h := r.next
	r.next++ // wraps to HandleNull after MaxHandle
	obj.base().handle = h
	r.objects[h] = obj
	return h
}

// Lookup returns the object for h, or nil if h was never issued, has been
// unregistered, or its object has started destruction.
func (r *Registry) Lookup(h Handle) Object {
	r.mu.RLock()
	obj := r.objects[h]
	r.mu.RUnlock()

	if obj == nil || !obj.IsAlive() {
		return nil
	}
	return obj
}

// Unregister removes h. It is a no-op for unknown handles.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, h)
}

// Count returns the number of registered objects.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// Handles returns all registered handles in ascending order.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.objects))
	for h := range r.objects {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// NextHandle returns the handle the next Register call will issue.
func (r *Registry) NextHandle() Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.next
}

// restore records obj under a handle issued by an earlier session.
func (r *Registry) restore(h Handle, obj Object) error {
	if h == HandleNull {
		return fmt.Errorf("%w: null handle", ErrInvalidSnapshot)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objects[h]; exists {
		return fmt.Errorf("%w: duplicate handle %d", ErrInvalidSnapshot, h)
	}
	obj.base().handle = h
	r.objects[h] = obj
	if h >= r.next && r.next != HandleNull {
		r.next = h + 1
	}
	return nil
}

// setNext moves the allocation counter forward; it never moves it back.
func (r *Registry) setNext(next Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if next > r.next {
		r.next = next
	}
}

// reset drops every entry and returns what was registered.
func (r *Registry) reset() []Object {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := make([]Object, 0, len(r.objects))
	for _, obj := range r.objects {
		dropped = append(dropped, obj)
	}
	r.objects = make(map[Handle]Object)
	return dropped
}
