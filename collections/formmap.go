package collections

import "sort"

// ---------------------------------------------------------------------------
// FormMap: values keyed by external form ids
// ---------------------------------------------------------------------------

// FormMap stores values under form ids. Keys are opaque and compared
// exactly. They are not stable across a host save/reload, so a loaded
// FormMap runs UpdateKeys before it is handed to any caller.
type FormMap struct {
	objectBase
	entries map[FormID]Value
}

// FormEntry is a key/value pair copied out of a FormMap.
type FormEntry struct {
	Key   FormID
	Value Value
}

// FormMapReader exposes the raw read operations of a FormMap whose read lock
// is held.
type FormMapReader struct {
	m *FormMap
}

// FormMapWriter exposes the raw operations of a FormMap whose write lock is
// held.
type FormMapWriter struct {
	FormMapReader
	released *[]Handle
}

// View runs fn with the read lock held.
func (m *FormMap) View(fn func(r *FormMapReader)) {
	m.read(func() { fn(&FormMapReader{m: m}) })
}

// Update runs fn with the write lock held.
func (m *FormMap) Update(fn func(w *FormMapWriter)) {
	m.write(func(released *[]Handle) {
		fn(&FormMapWriter{FormMapReader: FormMapReader{m: m}, released: released})
	})
}

// Count returns the number of entries.
func (r *FormMapReader) Count() int { return len(r.m.entries) }

// Find returns the value stored under key.
func (r *FormMapReader) Find(key FormID) (Value, bool) {
	v, ok := r.m.entries[key]
	return v, ok
}

// Keys returns the keys in ascending order.
func (r *FormMapReader) Keys() []FormID { return r.m.sortedKeys() }

// Entries returns a copy of the contents in ascending key order.
func (r *FormMapReader) Entries() []FormEntry {
	out := make([]FormEntry, 0, len(r.m.entries))
	for _, k := range r.m.sortedKeys() {
		out = append(out, FormEntry{Key: k, Value: r.m.entries[k]})
	}
	return out
}

// SetValueForKey stores v under key. The zero id names no object, so it is
// ignored and false is returned.
func (w *FormMapWriter) SetValueForKey(key FormID, v Value) bool {
	if key == FormZero {
		return false
	}
	v = w.m.store.ownValue(v)
	if prev, ok := w.m.entries[key]; ok {
		disown(prev, w.released)
	}
	if w.m.entries == nil {
		w.m.entries = make(map[FormID]Value)
	}
	w.m.entries[key] = v
	return true
}

// Erase removes key and reports whether it was present.
func (w *FormMapWriter) Erase(key FormID) bool {
	prev, ok := w.m.entries[key]
	if !ok {
		return false
	}
	disown(prev, w.released)
	delete(w.m.entries, key)
	return true
}

// Clear removes every entry.
func (w *FormMapWriter) Clear() {
	for _, v := range w.m.entries {
		disown(v, w.released)
	}
	w.m.entries = nil
}

// UpdateKeys re-resolves every key through r. Entries whose key no longer
// resolves are dropped. Keys are visited in ascending order of their old id;
// when two old keys resolve to the same new id the later one wins and the
// value it replaces is released. It returns the number of dropped entries
// (unresolvable or overwritten).
func (w *FormMapWriter) UpdateKeys(r FormResolver) int {
	if len(w.m.entries) == 0 {
		return 0
	}
	dropped := 0
	updated := make(map[FormID]Value, len(w.m.entries))
	for _, old := range w.m.sortedKeys() {
		v := w.m.entries[old]
		resolved, ok := r.ResolveFormID(old)
		if !ok || resolved == FormZero {
			disown(v, w.released)
			dropped++
			continue
		}
		if prev, ok := updated[resolved]; ok {
			disown(prev, w.released)
			dropped++
		}
		updated[resolved] = v
	}
	w.m.entries = updated
	return dropped
}

// ---------------------------------------------------------------------------
// Locked operations
// ---------------------------------------------------------------------------

// Find returns the value stored under key.
func (m *FormMap) Find(key FormID) (v Value, ok bool) {
	m.View(func(r *FormMapReader) { v, ok = r.Find(key) })
	return v, ok
}

// KindOf returns the kind of the value under key, or KindNoItem.
func (m *FormMap) KindOf(key FormID) Kind {
	v, ok := m.Find(key)
	if !ok {
		return KindNoItem
	}
	return v.Kind()
}

// SetValueForKey stores v under key; the zero key is ignored.
func (m *FormMap) SetValueForKey(key FormID, v Value) (ok bool) {
	m.Update(func(w *FormMapWriter) { ok = w.SetValueForKey(key, v) })
	return ok
}

// Erase removes key and reports whether it was present.
func (m *FormMap) Erase(key FormID) (ok bool) {
	m.Update(func(w *FormMapWriter) { ok = w.Erase(key) })
	return ok
}

// Keys returns the keys in ascending order.
func (m *FormMap) Keys() (keys []FormID) {
	m.View(func(r *FormMapReader) { keys = r.Keys() })
	return keys
}

// Entries returns a copy of the contents.
func (m *FormMap) Entries() (out []FormEntry) {
	m.View(func(r *FormMapReader) { out = r.Entries() })
	return out
}

// Count returns the number of entries.
func (m *FormMap) Count() (n int) {
	m.View(func(r *FormMapReader) { n = r.Count() })
	return n
}

// Clear removes every entry.
func (m *FormMap) Clear() {
	m.Update(func(w *FormMapWriter) { w.Clear() })
}

// ---------------------------------------------------------------------------
// Object plumbing
// ---------------------------------------------------------------------------

func (m *FormMap) sortedKeys() []FormID {
	keys := make([]FormID, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (m *FormMap) drainReferences() []Handle {
	var released []Handle
	m.forEachValue(func(v *Value) {
		if h, ok := v.NullifyObject(); ok {
			released = append(released, h)
		}
	})
	m.entries = nil
	return released
}

func (m *FormMap) forEachValue(fn func(v *Value)) {
	for k, v := range m.entries {
		fn(&v)
		m.entries[k] = v
	}
}

func (m *FormMap) saveRecord(rec *ObjectRecord) {
	rec.FormEntries = make([]FormEntryRecord, 0, len(m.entries))
	for _, k := range m.sortedKeys() {
		rec.FormEntries = append(rec.FormEntries, FormEntryRecord{Key: k, Value: m.store.encodeValue(m.entries[k])})
	}
}

func (m *FormMap) loadRecord(rec *ObjectRecord, decode func(ValueRecord) Value) []Handle {
	var dropped []Handle
	m.entries = make(map[FormID]Value, len(rec.FormEntries))
	for _, fr := range rec.FormEntries {
		v := decode(fr.Value)
		if fr.Key == FormZero {
			disown(v, &dropped)
			continue
		}
		if prev, ok := m.entries[fr.Key]; ok {
			disown(prev, &dropped)
		}
		m.entries[fr.Key] = v
	}
	return dropped
}
