package collections

import (
	"fmt"
	"sync"
	"time"
)

// Options configures a Store.
type Options struct {
	// Lifetime is how long an autoreleased reference survives; Interval is
	// the autorelease scan period. Zero selects the defaults.
	Lifetime time.Duration
	Interval time.Duration

	// Resolver re-resolves form ids after a load. Nil selects
	// IdentityResolver.
	Resolver FormResolver
}

// Store owns one registry of managed objects and its autorelease queue. A
// process normally has one Store per host session.
type Store struct {
	registry *Registry
	queue    *AutoreleaseQueue

	mu       sync.RWMutex // guards resolver
	resolver FormResolver

	// restoring serializes Snapshot, Restore and Reset.
	restoring sync.Mutex
}

// NewStore creates an empty store. The autorelease worker is not running
// until Start is called.
func NewStore(opts Options) *Store {
	s := &Store{registry: NewRegistry()}
	s.queue = NewAutoreleaseQueue(s.registry, opts.Lifetime, opts.Interval)
	s.resolver = opts.Resolver
	if s.resolver == nil {
		s.resolver = IdentityResolver
	}
	return s
}

// Start launches the autorelease worker.
func (s *Store) Start() { s.queue.Start() }

// Shutdown stops the autorelease worker. Objects stay registered.
func (s *Store) Shutdown() { s.queue.Stop() }

// Registry returns the handle registry.
func (s *Store) Registry() *Registry { return s.registry }

// Autorelease returns the autorelease queue.
func (s *Store) Autorelease() *AutoreleaseQueue { return s.queue }

// Resolver returns the current form resolver.
func (s *Store) Resolver() FormResolver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolver
}

// SetResolver replaces the form resolver; nil restores IdentityResolver.
func (s *Store) SetResolver(r FormResolver) {
	if r == nil {
		r = IdentityResolver
	}
	s.mu.Lock()
	s.resolver = r
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Object creation and lookup
// ---------------------------------------------------------------------------

// NewArray creates an Array owned once by the caller.
func (s *Store) NewArray() *Array {
	return s.NewObject(CollectionTypeArray, 1).(*Array)
}

// NewMap creates a Map owned once by the caller.
func (s *Store) NewMap() *Map {
	return s.NewObject(CollectionTypeMap, 1).(*Map)
}

// NewFormMap creates a FormMap owned once by the caller.
func (s *Store) NewFormMap() *FormMap {
	return s.NewObject(CollectionTypeFormMap, 1).(*FormMap)
}

// NewObject creates and registers an object of type t with an initial
// reference count of owners. An object created with no owners is reachable
// by handle but is only kept alive once something retains it.
func (s *Store) NewObject(t CollectionType, owners int32) Object {
	obj := newObject(s, t, owners)
	s.registry.Register(obj)
	log.Debugf("object %d (%s) created", obj.Handle(), t)
	return obj
}

func newObject(s *Store, t CollectionType, owners int32) Object {
	switch t {
	case CollectionTypeArray:
		a := &Array{}
		a.init(s, a, t, owners)
		return a
	case CollectionTypeMap:
		m := &Map{}
		m.init(s, m, t, owners)
		return m
	case CollectionTypeFormMap:
		m := &FormMap{}
		m.init(s, m, t, owners)
		return m
	}
	panic(fmt.Sprintf("collections: unknown collection type %d", uint8(t)))
}

// Lookup returns the live object for h, or nil.
func (s *Store) Lookup(h Handle) Object {
	return s.registry.Lookup(h)
}

// LookupArray returns the live Array for h, or nil if h names no Array.
func (s *Store) LookupArray(h Handle) *Array {
	a, _ := s.Lookup(h).(*Array)
	return a
}

// LookupMap returns the live Map for h, or nil if h names no Map.
func (s *Store) LookupMap(h Handle) *Map {
	m, _ := s.Lookup(h).(*Map)
	return m
}

// LookupFormMap returns the live FormMap for h, or nil if h names no FormMap.
func (s *Store) LookupFormMap(h Handle) *FormMap {
	m, _ := s.Lookup(h).(*FormMap)
	return m
}

// Stats returns a summary of the store contents.
func (s *Store) Stats() map[string]int {
	stats := map[string]int{
		"objects":     0,
		"arrays":      0,
		"maps":        0,
		"formMaps":    0,
		"autorelease": s.queue.Count(),
	}
	for _, h := range s.registry.Handles() {
		obj := s.registry.Lookup(h)
		if obj == nil {
			continue
		}
		stats["objects"]++
		switch obj.Type() {
		case CollectionTypeArray:
			stats["arrays"]++
		case CollectionTypeMap:
			stats["maps"]++
		case CollectionTypeFormMap:
			stats["formMaps"]++
		}
	}
	return stats
}

// Reset drops every object and queued autorelease entry without running
// release chains, as when the host starts a new session. Handles issued
// before Reset are never reissued.
func (s *Store) Reset() {
	s.restoring.Lock()
	defer s.restoring.Unlock()

	paused := s.queue.Paused()
	s.queue.SetPaused(true)
	defer s.queue.SetPaused(paused)

	s.queue.reset()
	dropped := s.registry.reset()
	for _, obj := range dropped {
		obj.base().discard()
	}
	log.Infof("store reset, %d objects dropped", len(dropped))
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// releaseHandles releases one reference on each handle. A handle that no
// longer resolves means a reference was lost elsewhere; it is logged and
// skipped.
func (s *Store) releaseHandles(handles []Handle) {
	for _, h := range handles {
		obj := s.registry.Lookup(h)
		if obj == nil {
			log.Warningf("release of unknown handle %d", h)
			continue
		}
		obj.Release()
	}
}
