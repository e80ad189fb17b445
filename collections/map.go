package collections

import "sort"

// ---------------------------------------------------------------------------
// Map: values keyed by case-insensitive strings
// ---------------------------------------------------------------------------

type mapEntry struct {
	key   string // spelling used when the slot was created
	value Value
}

// Map stores values under string keys. Keys differing only in case address
// the same slot; the first spelling used for a slot is kept.
type Map struct {
	objectBase
	entries map[string]*mapEntry // folded key -> entry
}

// MapEntry is a key/value pair copied out of a Map.
type MapEntry struct {
	Key   string
	Value Value
}

// MapReader exposes the raw read operations of a Map whose read lock is held.
type MapReader struct {
	m *Map
}

// MapWriter exposes the raw operations of a Map whose write lock is held.
type MapWriter struct {
	MapReader
	released *[]Handle
}

// View runs fn with the read lock held.
func (m *Map) View(fn func(r *MapReader)) {
	m.read(func() { fn(&MapReader{m: m}) })
}

// Update runs fn with the write lock held.
func (m *Map) Update(fn func(w *MapWriter)) {
	m.write(func(released *[]Handle) {
		fn(&MapWriter{MapReader: MapReader{m: m}, released: released})
	})
}

// Count returns the number of entries.
func (r *MapReader) Count() int { return len(r.m.entries) }

// Find returns the value stored under key.
func (r *MapReader) Find(key string) (Value, bool) {
	e, ok := r.m.entries[foldKey(key)]
	if !ok {
		return Value{}, false
	}
	return e.value, true
}

// Keys returns the keys in case-insensitive order.
func (r *MapReader) Keys() []string {
	keys := make([]string, 0, len(r.m.entries))
	for _, folded := range r.m.sortedFoldedKeys() {
		keys = append(keys, r.m.entries[folded].key)
	}
	return keys
}

// Entries returns a copy of the contents in case-insensitive key order.
func (r *MapReader) Entries() []MapEntry {
	out := make([]MapEntry, 0, len(r.m.entries))
	for _, folded := range r.m.sortedFoldedKeys() {
		e := r.m.entries[folded]
		out = append(out, MapEntry{Key: e.key, Value: e.value})
	}
	return out
}

// SetValueForKey stores v under key, replacing and releasing any previous
// value.
func (w *MapWriter) SetValueForKey(key string, v Value) {
	v = w.m.store.ownValue(v)
	folded := foldKey(key)
	if e, ok := w.m.entries[folded]; ok {
		disown(e.value, w.released)
		e.value = v
		return
	}
	if w.m.entries == nil {
		w.m.entries = make(map[string]*mapEntry)
	}
	w.m.entries[folded] = &mapEntry{key: key, value: v}
}

// Erase removes key and reports whether it was present.
func (w *MapWriter) Erase(key string) bool {
	folded := foldKey(key)
	e, ok := w.m.entries[folded]
	if !ok {
		return false
	}
	disown(e.value, w.released)
	delete(w.m.entries, folded)
	return true
}

// Clear removes every entry.
func (w *MapWriter) Clear() {
	for _, e := range w.m.entries {
		disown(e.value, w.released)
	}
	w.m.entries = nil
}

// ---------------------------------------------------------------------------
// Locked operations
// ---------------------------------------------------------------------------

// Find returns the value stored under key.
func (m *Map) Find(key string) (v Value, ok bool) {
	m.View(func(r *MapReader) { v, ok = r.Find(key) })
	return v, ok
}

// KindOf returns the kind of the value under key, or KindNoItem.
func (m *Map) KindOf(key string) Kind {
	v, ok := m.Find(key)
	if !ok {
		return KindNoItem
	}
	return v.Kind()
}

// SetValueForKey stores v under key.
func (m *Map) SetValueForKey(key string, v Value) {
	m.Update(func(w *MapWriter) { w.SetValueForKey(key, v) })
}

// Erase removes key and reports whether it was present.
func (m *Map) Erase(key string) (ok bool) {
	m.Update(func(w *MapWriter) { ok = w.Erase(key) })
	return ok
}

// Keys returns the keys in case-insensitive order.
func (m *Map) Keys() (keys []string) {
	m.View(func(r *MapReader) { keys = r.Keys() })
	return keys
}

// Entries returns a copy of the contents.
func (m *Map) Entries() (out []MapEntry) {
	m.View(func(r *MapReader) { out = r.Entries() })
	return out
}

// Count returns the number of entries.
func (m *Map) Count() (n int) {
	m.View(func(r *MapReader) { n = r.Count() })
	return n
}

// Clear removes every entry.
func (m *Map) Clear() {
	m.Update(func(w *MapWriter) { w.Clear() })
}

// ---------------------------------------------------------------------------
// Object plumbing
// ---------------------------------------------------------------------------

func (m *Map) sortedFoldedKeys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Map) drainReferences() []Handle {
	var released []Handle
	for _, e := range m.entries {
		if h, ok := e.value.NullifyObject(); ok {
			released = append(released, h)
		}
	}
	m.entries = nil
	return released
}

func (m *Map) forEachValue(fn func(v *Value)) {
	for _, e := range m.entries {
		fn(&e.value)
	}
}

func (m *Map) saveRecord(rec *ObjectRecord) {
	rec.Entries = make([]EntryRecord, 0, len(m.entries))
	for _, folded := range m.sortedFoldedKeys() {
		e := m.entries[folded]
		rec.Entries = append(rec.Entries, EntryRecord{Key: e.key, Value: m.store.encodeValue(e.value)})
	}
}

func (m *Map) loadRecord(rec *ObjectRecord, decode func(ValueRecord) Value) []Handle {
	var dropped []Handle
	m.entries = make(map[string]*mapEntry, len(rec.Entries))
	for _, er := range rec.Entries {
		folded := foldKey(er.Key)
		if prev, ok := m.entries[folded]; ok {
			// two spellings of one key: the later entry wins
			disown(prev.value, &dropped)
		}
		m.entries[folded] = &mapEntry{key: er.Key, value: decode(er.Value)}
	}
	return dropped
}
