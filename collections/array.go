package collections

// ---------------------------------------------------------------------------
// Array: dense, insertion-ordered sequence of values
// ---------------------------------------------------------------------------

// Array is an index-addressable list of values. Every exported method takes
// the object lock for its whole duration; compose several operations under
// one lock with Update or View.
type Array struct {
	objectBase
	items []Value
}

// ArrayReader exposes the raw read operations of an Array whose read lock is
// held. It must not be used after the View callback returns.
type ArrayReader struct {
	a *Array
}

// ArrayWriter exposes the raw operations of an Array whose write lock is
// held. It must not be used after the Update callback returns.
type ArrayWriter struct {
	ArrayReader
	released *[]Handle
}

// View runs fn with the read lock held.
func (a *Array) View(fn func(r *ArrayReader)) {
	a.read(func() { fn(&ArrayReader{a: a}) })
}

// Update runs fn with the write lock held.
func (a *Array) Update(fn func(w *ArrayWriter)) {
	a.write(func(released *[]Handle) {
		fn(&ArrayWriter{ArrayReader: ArrayReader{a: a}, released: released})
	})
}

// Count returns the number of elements.
func (r *ArrayReader) Count() int { return len(r.a.items) }

// Get returns the element at index.
func (r *ArrayReader) Get(index int) (Value, bool) {
	if index < 0 || index >= len(r.a.items) {
		return Value{}, false
	}
	return r.a.items[index], true
}

// Find returns the index of the first element equal to v, or -1.
func (r *ArrayReader) Find(v Value) int {
	for i, item := range r.a.items {
		if item.Equal(v) {
			return i
		}
	}
	return -1
}

// Values returns a copy of the elements.
func (r *ArrayReader) Values() []Value {
	out := make([]Value, len(r.a.items))
	copy(out, r.a.items)
	return out
}

// Push appends v.
func (w *ArrayWriter) Push(v Value) {
	w.a.items = append(w.a.items, w.a.store.ownValue(v))
}

// Set replaces the element at index. It does nothing and reports false when
// index is out of range.
func (w *ArrayWriter) Set(index int, v Value) bool {
	if index < 0 || index >= len(w.a.items) {
		return false
	}
	v = w.a.store.ownValue(v)
	disown(w.a.items[index], w.released)
	w.a.items[index] = v
	return true
}

// Insert places v before index; index == Count appends.
func (w *ArrayWriter) Insert(index int, v Value) bool {
	if index < 0 || index > len(w.a.items) {
		return false
	}
	v = w.a.store.ownValue(v)
	w.a.items = append(w.a.items, Value{})
	copy(w.a.items[index+1:], w.a.items[index:])
	w.a.items[index] = v
	return true
}

// Erase removes the element at index.
func (w *ArrayWriter) Erase(index int) bool {
	if index < 0 || index >= len(w.a.items) {
		return false
	}
	disown(w.a.items[index], w.released)
	copy(w.a.items[index:], w.a.items[index+1:])
	w.a.items[len(w.a.items)-1] = Value{}
	w.a.items = w.a.items[:len(w.a.items)-1]
	return true
}

// Clear removes every element.
func (w *ArrayWriter) Clear() {
	for _, item := range w.a.items {
		disown(item, w.released)
	}
	w.a.items = nil
}

// ---------------------------------------------------------------------------
// Locked operations
// ---------------------------------------------------------------------------

// Push appends v, retaining its target if v is an Object value.
func (a *Array) Push(v Value) {
	a.Update(func(w *ArrayWriter) { w.Push(v) })
}

// Get returns the element at index.
func (a *Array) Get(index int) (v Value, ok bool) {
	a.View(func(r *ArrayReader) { v, ok = r.Get(index) })
	return v, ok
}

// KindAt returns the kind of the element at index, or KindNoItem.
func (a *Array) KindAt(index int) Kind {
	v, ok := a.Get(index)
	if !ok {
		return KindNoItem
	}
	return v.Kind()
}

// Set replaces the element at index; out of range is a no-op.
func (a *Array) Set(index int, v Value) (ok bool) {
	a.Update(func(w *ArrayWriter) { ok = w.Set(index, v) })
	return ok
}

// Insert places v before index.
func (a *Array) Insert(index int, v Value) (ok bool) {
	a.Update(func(w *ArrayWriter) { ok = w.Insert(index, v) })
	return ok
}

// EraseIndex removes the element at index, releasing its target.
func (a *Array) EraseIndex(index int) (ok bool) {
	a.Update(func(w *ArrayWriter) { ok = w.Erase(index) })
	return ok
}

// Find returns the index of the first element equal to v, or -1.
func (a *Array) Find(v Value) (index int) {
	a.View(func(r *ArrayReader) { index = r.Find(v) })
	return index
}

// Values returns a copy of the elements.
func (a *Array) Values() (out []Value) {
	a.View(func(r *ArrayReader) { out = r.Values() })
	return out
}

// Count returns the number of elements.
func (a *Array) Count() (n int) {
	a.View(func(r *ArrayReader) { n = r.Count() })
	return n
}

// Clear removes every element.
func (a *Array) Clear() {
	a.Update(func(w *ArrayWriter) { w.Clear() })
}

// ---------------------------------------------------------------------------
// Object plumbing
// ---------------------------------------------------------------------------

func (a *Array) drainReferences() []Handle {
	var released []Handle
	for i := range a.items {
		if h, ok := a.items[i].NullifyObject(); ok {
			released = append(released, h)
		}
	}
	a.items = nil
	return released
}

func (a *Array) forEachValue(fn func(v *Value)) {
	for i := range a.items {
		fn(&a.items[i])
	}
}

func (a *Array) saveRecord(rec *ObjectRecord) {
	rec.Items = make([]ValueRecord, len(a.items))
	for i, item := range a.items {
		rec.Items[i] = a.store.encodeValue(item)
	}
}

func (a *Array) loadRecord(rec *ObjectRecord, decode func(ValueRecord) Value) []Handle {
	a.items = make([]Value, len(rec.Items))
	for i, vr := range rec.Items {
		a.items[i] = decode(vr)
	}
	return nil
}
