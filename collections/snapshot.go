package collections

import (
	"errors"
	"fmt"
)

// SnapshotVersion is the record layout produced by Store.Snapshot.
const SnapshotVersion = 1

var (
	// ErrStoreNotEmpty is returned by Restore on a store that still holds
	// objects or queued autorelease entries.
	ErrStoreNotEmpty = errors.New("store is not empty")

	// ErrInvalidSnapshot is returned by Restore for malformed snapshots.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// ValueRecord is the persisted form of a Value. Num carries the integer
// bits, the float bits, the form id or the handle depending on Kind.
type ValueRecord struct {
	Kind Kind   `cbor:"1,keyasint"`
	Num  uint32 `cbor:"2,keyasint,omitempty"`
	Str  string `cbor:"3,keyasint,omitempty"`
}

// EntryRecord is one Map entry; Key keeps its original spelling.
type EntryRecord struct {
	Key   string      `cbor:"1,keyasint"`
	Value ValueRecord `cbor:"2,keyasint"`
}

// FormEntryRecord is one FormMap entry, keyed by the id valid at save time.
type FormEntryRecord struct {
	Key   FormID      `cbor:"1,keyasint"`
	Value ValueRecord `cbor:"2,keyasint"`
}

// ObjectRecord is one managed object: its handle, type tag, reference count
// and the contents matching its type.
type ObjectRecord struct {
	Handle      Handle            `cbor:"1,keyasint"`
	Type        CollectionType    `cbor:"2,keyasint"`
	Refs        int32             `cbor:"3,keyasint"`
	Items       []ValueRecord     `cbor:"4,keyasint,omitempty"`
	Entries     []EntryRecord     `cbor:"5,keyasint,omitempty"`
	FormEntries []FormEntryRecord `cbor:"6,keyasint,omitempty"`
}

// QueueEntryRecord is one pending autorelease entry.
type QueueEntryRecord struct {
	Handle Handle `cbor:"1,keyasint"`
	Tick   uint32 `cbor:"2,keyasint"`
}

// AutoreleaseRecord is the persisted autorelease queue.
type AutoreleaseRecord struct {
	Tick    uint32             `cbor:"1,keyasint"`
	Entries []QueueEntryRecord `cbor:"2,keyasint,omitempty"`
}

// Snapshot is the complete persisted state of a Store. Every reference held
// by a container slot or a queue entry is accounted for in the Refs of its
// target, so a restored store needs no retains.
type Snapshot struct {
	Version     int               `cbor:"1,keyasint"`
	NextHandle  Handle            `cbor:"2,keyasint"`
	Objects     []ObjectRecord    `cbor:"3,keyasint"`
	Autorelease AutoreleaseRecord `cbor:"4,keyasint"`
}

// ---------------------------------------------------------------------------
// Save
// ---------------------------------------------------------------------------

// Snapshot captures every live object and the autorelease queue. The queue
// is paused for the duration. Concurrent mutators should be quiesced by the
// host; each object is captured under its own read lock.
func (s *Store) Snapshot() *Snapshot {
	s.restoring.Lock()
	defer s.restoring.Unlock()

	paused := s.queue.Paused()
	s.queue.SetPaused(true)
	defer s.queue.SetPaused(paused)

	snap := &Snapshot{
		Version:    SnapshotVersion,
		NextHandle: s.registry.NextHandle(),
	}
	for _, h := range s.registry.Handles() {
		obj := s.registry.Lookup(h)
		if obj == nil {
			continue
		}
		rec := ObjectRecord{Handle: h, Type: obj.Type(), Refs: obj.RefCount()}
		obj.base().read(func() { obj.saveRecord(&rec) })
		snap.Objects = append(snap.Objects, rec)
	}
	snap.Autorelease = s.queue.snapshot()
	return snap
}

// encodeValue converts v for persistence. An Object value whose target is
// gone is saved as None.
func (s *Store) encodeValue(v Value) ValueRecord {
	if h, ok := v.Handle(); ok && s.registry.Lookup(h) == nil {
		return ValueRecord{Kind: KindNone}
	}
	return ValueRecord{Kind: v.Kind(), Num: v.num, Str: v.str}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// Restore rebuilds the store from snap. Objects come back under their saved
// handles with their saved reference counts. Form values and FormMap keys
// are re-resolved through the store's resolver before any object becomes
// reachable: unresolvable Form values become None and unresolvable FormMap
// entries are dropped. Object values naming a handle absent from snap become
// None. The store must be empty.
func (s *Store) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}

	s.restoring.Lock()
	defer s.restoring.Unlock()

	if s.registry.Count() != 0 || s.queue.Count() != 0 {
		return ErrStoreNotEmpty
	}

	paused := s.queue.Paused()
	s.queue.SetPaused(true)
	defer s.queue.SetPaused(paused)

	known, err := validateSnapshot(snap)
	if err != nil {
		return err
	}

	resolver := s.Resolver()
	decode := func(vr ValueRecord) Value {
		switch vr.Kind {
		case KindInteger, KindReal:
			return Value{kind: vr.Kind, num: vr.Num}
		case KindString:
			return StringValue(vr.Str)
		case KindForm:
			id, ok := resolver.ResolveFormID(FormID(vr.Num))
			if !ok {
				return Value{}
			}
			return FormValue(id)
		case KindObject:
			if !known[Handle(vr.Num)] {
				return Value{}
			}
			return handleValue(Handle(vr.Num))
		}
		return Value{}
	}

	// Contents are loaded and fixed up while the objects are still private.
	objects := make([]Object, len(snap.Objects))
	var dropped []Handle
	for i := range snap.Objects {
		rec := &snap.Objects[i]
		obj := newObject(s, rec.Type, rec.Refs)
		obj.base().handle = rec.Handle

		b := obj.base()
		b.mu.Lock()
		dropped = append(dropped, obj.loadRecord(rec, decode)...)
		if fm, ok := obj.(*FormMap); ok {
			w := &FormMapWriter{FormMapReader: FormMapReader{m: fm}, released: &dropped}
			if n := w.UpdateKeys(resolver); n > 0 {
				log.Debugf("form map %d: %d keys dropped by fix-up", rec.Handle, n)
			}
		}
		b.mu.Unlock()
		objects[i] = obj
	}

	for i, obj := range objects {
		if err := s.registry.restore(snap.Objects[i].Handle, obj); err != nil {
			// validateSnapshot rules this out
			panic(err)
		}
	}
	s.registry.setNext(snap.NextHandle)
	s.queue.restore(snap.Autorelease, func(h Handle) bool { return known[h] })

	// Dropped references can only be released once their targets are
	// registered.
	s.releaseHandles(dropped)

	log.Infof("restored %d objects, %d references dropped", len(objects), len(dropped))
	return nil
}

// validateSnapshot checks record-level consistency and returns the set of
// persisted handles. Every saved reference count must cover the references
// the snapshot itself holds on that object.
func validateSnapshot(snap *Snapshot) (map[Handle]bool, error) {
	known := make(map[Handle]bool, len(snap.Objects))
	for i := range snap.Objects {
		rec := &snap.Objects[i]
		if rec.Handle == HandleNull {
			return nil, fmt.Errorf("%w: object %d has the null handle", ErrInvalidSnapshot, i)
		}
		if known[rec.Handle] {
			return nil, fmt.Errorf("%w: duplicate handle %d", ErrInvalidSnapshot, rec.Handle)
		}
		if rec.Refs < 0 {
			return nil, fmt.Errorf("%w: object %d has negative reference count %d", ErrInvalidSnapshot, rec.Handle, rec.Refs)
		}
		switch rec.Type {
		case CollectionTypeArray, CollectionTypeMap, CollectionTypeFormMap:
		default:
			return nil, fmt.Errorf("%w: object %d has unknown type %d", ErrInvalidSnapshot, rec.Handle, uint8(rec.Type))
		}
		if err := validateValues(rec); err != nil {
			return nil, err
		}
		known[rec.Handle] = true
	}

	held := make(map[Handle]int64, len(known))
	count := func(vr ValueRecord) {
		if vr.Kind == KindObject && known[Handle(vr.Num)] {
			held[Handle(vr.Num)]++
		}
	}
	for i := range snap.Objects {
		rec := &snap.Objects[i]
		switch rec.Type {
		case CollectionTypeArray:
			for _, vr := range rec.Items {
				count(vr)
			}
		case CollectionTypeMap:
			for _, er := range rec.Entries {
				count(er.Value)
			}
		case CollectionTypeFormMap:
			for _, fr := range rec.FormEntries {
				count(fr.Value)
			}
		}
	}
	for _, e := range snap.Autorelease.Entries {
		if known[e.Handle] {
			held[e.Handle]++
		}
	}
	for i := range snap.Objects {
		rec := &snap.Objects[i]
		if n := held[rec.Handle]; int64(rec.Refs) < n {
			return nil, fmt.Errorf("%w: object %d has reference count %d but %d references are saved",
				ErrInvalidSnapshot, rec.Handle, rec.Refs, n)
		}
	}
	return known, nil
}

func validateValues(rec *ObjectRecord) error {
	check := func(vr ValueRecord) error {
		if vr.Kind > KindString {
			return fmt.Errorf("%w: object %d holds a value of unknown kind %d", ErrInvalidSnapshot, rec.Handle, uint8(vr.Kind))
		}
		return nil
	}
	for _, vr := range rec.Items {
		if err := check(vr); err != nil {
			return err
		}
	}
	for _, er := range rec.Entries {
		if err := check(er.Value); err != nil {
			return err
		}
	}
	for _, fr := range rec.FormEntries {
		if err := check(fr.Value); err != nil {
			return err
		}
	}
	return nil
}
