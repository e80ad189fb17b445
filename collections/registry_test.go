package collections

import (
	"strings"
	"testing"
)

func TestRegistryHandlesStartAtOneAndIncrease(t *testing.T) {
	s := NewStore(Options{})
	a := s.NewArray()
	m := s.NewMap()
	f := s.NewFormMap()

	if a.Handle() != 1 || m.Handle() != 2 || f.Handle() != 3 {
		t.Errorf("handles = %d %d %d, want 1 2 3", a.Handle(), m.Handle(), f.Handle())
	}
	if got := s.Registry().Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}

func TestRegistryHandlesAreNotReused(t *testing.T) {
	s := NewStore(Options{})
	a := s.NewArray()
	h := a.Handle()
	a.Release()

	b := s.NewArray()
	if b.Handle() == h {
		t.Errorf("handle %d was reissued", h)
	}
	if s.Lookup(h) != nil {
		t.Errorf("Lookup(%d) after destruction should be nil", h)
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	s := NewStore(Options{})
	if s.Lookup(HandleNull) != nil {
		t.Error("Lookup(HandleNull) should be nil")
	}
	if s.Lookup(99) != nil {
		t.Error("Lookup of a never-issued handle should be nil")
	}
}

func TestRegistryTypedLookup(t *testing.T) {
	s := NewStore(Options{})
	a := s.NewArray()
	m := s.NewMap()

	if s.LookupArray(a.Handle()) != a {
		t.Error("LookupArray should return the array")
	}
	if s.LookupMap(a.Handle()) != nil {
		t.Error("LookupMap on an array handle should be nil")
	}
	if s.LookupFormMap(m.Handle()) != nil {
		t.Error("LookupFormMap on a map handle should be nil")
	}
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Unregister(5)
	r.Unregister(5)
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestRegistryHandlesSorted(t *testing.T) {
	s := NewStore(Options{})
	for i := 0; i < 5; i++ {
		s.NewMap()
	}
	s.LookupMap(3).Release()

	got := s.Registry().Handles()
	want := []Handle{1, 2, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Handles() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Handles() = %v, want %v", got, want)
		}
	}
}

// TestRegistryExhaustionPanics verifies that the registry refuses to wrap
// around into the null handle.
func TestRegistryExhaustionPanics(t *testing.T) {
	s := NewStore(Options{})
	s.registry.setNext(MaxHandle)

	last := s.NewArray()
	if last.Handle() != MaxHandle {
		t.Fatalf("handle = %d, want MaxHandle", last.Handle())
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on handle exhaustion")
		}
		if msg, _ := r.(string); !strings.Contains(msg, "exhausted") {
			t.Errorf("panic = %v, want handle exhaustion", r)
		}
	}()
	s.NewArray()
}
