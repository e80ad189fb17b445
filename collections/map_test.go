package collections

import "testing"

// TestMapKeysAreCaseInsensitive verifies that keys differing only in case
// address one slot and that the first spelling is kept.
func TestMapKeysAreCaseInsensitive(t *testing.T) {
	s := NewStore(Options{})
	m := s.NewMap()
	defer m.Release()

	m.SetValueForKey("Gold", IntValue(1))
	m.SetValueForKey("GOLD", IntValue(2))

	if m.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", m.Count())
	}
	if v, ok := m.Find("gold"); !ok || v.AsInt() != 2 {
		t.Errorf("Find(gold) = %v, %v, want Integer(2)", v, ok)
	}
	if keys := m.Keys(); len(keys) != 1 || keys[0] != "Gold" {
		t.Errorf("Keys() = %v, want [Gold]", keys)
	}
}

func TestMapUnicodeFolding(t *testing.T) {
	s := NewStore(Options{})
	m := s.NewMap()
	defer m.Release()

	m.SetValueForKey("Ärger", IntValue(1))
	if _, ok := m.Find("ärger"); !ok {
		t.Error("non-ASCII keys should fold")
	}
}

func TestMapEraseAndKindOf(t *testing.T) {
	s := NewStore(Options{})
	m := s.NewMap()
	defer m.Release()

	m.SetValueForKey("a", StringValue("x"))
	if k := m.KindOf("A"); k != KindString {
		t.Errorf("KindOf(A) = %v, want String", k)
	}
	if !m.Erase("A") {
		t.Error("Erase(A) should remove the slot")
	}
	if m.Erase("a") {
		t.Error("second Erase should report false")
	}
	if k := m.KindOf("a"); k != KindNoItem {
		t.Errorf("KindOf(a) after erase = %v, want NoItem", k)
	}
}

func TestMapEntriesOrdered(t *testing.T) {
	s := NewStore(Options{})
	m := s.NewMap()
	defer m.Release()

	m.SetValueForKey("charlie", IntValue(3))
	m.SetValueForKey("Alpha", IntValue(1))
	m.SetValueForKey("bravo", IntValue(2))

	entries := m.Entries()
	want := []string{"Alpha", "bravo", "charlie"}
	if len(entries) != len(want) {
		t.Fatalf("Entries() = %v", entries)
	}
	for i, e := range entries {
		if e.Key != want[i] || e.Value.AsInt() != int32(i+1) {
			t.Errorf("Entries()[%d] = %s:%v", i, e.Key, e.Value)
		}
	}
}

func TestMapOverwriteReleasesPrevious(t *testing.T) {
	s := NewStore(Options{})
	m := s.NewMap()
	defer m.Release()
	first := s.NewArray()
	second := s.NewArray()

	m.SetValueForKey("slot", ObjectValue(first))
	first.Release()
	m.SetValueForKey("SLOT", ObjectValue(second))

	if first.IsAlive() {
		t.Error("overwritten object should be released")
	}
	if second.RefCount() != 2 {
		t.Errorf("RefCount() = %d, want 2", second.RefCount())
	}

	// storing the same object again keeps the count balanced
	m.SetValueForKey("slot", ObjectValue(second))
	if second.RefCount() != 2 {
		t.Errorf("RefCount() after re-store = %d, want 2", second.RefCount())
	}
	second.Release()
}

func TestMapUpdateView(t *testing.T) {
	s := NewStore(Options{})
	m := s.NewMap()
	defer m.Release()

	m.Update(func(w *MapWriter) {
		w.SetValueForKey("x", IntValue(1))
		if v, ok := w.Find("X"); !ok || v.AsInt() != 1 {
			t.Errorf("Find inside Update = %v, %v", v, ok)
		}
		w.Erase("x")
		w.SetValueForKey("y", IntValue(2))
	})

	m.View(func(r *MapReader) {
		if r.Count() != 1 {
			t.Errorf("Count() = %d, want 1", r.Count())
		}
		if keys := r.Keys(); len(keys) != 1 || keys[0] != "y" {
			t.Errorf("Keys() = %v", keys)
		}
	})
}
