package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chloeruka/jcontainers/collections"
)

func openTestSlots(t *testing.T) *Slots {
	t.Helper()
	p, err := OpenSlots(filepath.Join(t.TempDir(), "slots.db"))
	if err != nil {
		t.Fatalf("OpenSlots() error: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSlotsSaveLoad(t *testing.T) {
	p := openTestSlots(t)
	s, root := sampleStore(t)

	info, err := p.Save("quicksave", s)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if info.Name != "quicksave" || info.Objects != 3 || info.Size == 0 {
		t.Errorf("Save() info = %+v", info)
	}

	dst := collections.NewStore(collections.Options{})
	if err := p.Load(info.ID, dst); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if dst.LookupMap(root.Handle()) == nil {
		t.Error("root map missing after Load")
	}

	got, err := p.Info(info.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Size != info.Size || got.Objects != info.Objects {
		t.Errorf("Info() = %+v, want %+v", got, info)
	}
}

func TestSlotsListAndDelete(t *testing.T) {
	p := openTestSlots(t)
	s, _ := sampleStore(t)

	first, err := p.Save("first", s)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Save("second", s)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatal("slot ids must be unique")
	}

	list, err := p.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d slots, want 2", len(list))
	}

	if err := p.Delete(first.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := p.Delete(first.ID); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("second Delete() error = %v, want ErrSlotNotFound", err)
	}
	list, err = p.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("List() after delete = %+v", list)
	}
}

func TestSlotsReplace(t *testing.T) {
	p := openTestSlots(t)
	s, _ := sampleStore(t)

	info, err := p.Save("slot", s)
	if err != nil {
		t.Fatal(err)
	}
	s.NewArray()
	replaced, err := p.Replace(info.ID, s)
	if err != nil {
		t.Fatalf("Replace() error: %v", err)
	}
	if replaced.ID != info.ID || replaced.Name != "slot" || replaced.Objects != info.Objects+1 {
		t.Errorf("Replace() = %+v", replaced)
	}
}

func TestSlotsUnknownIDs(t *testing.T) {
	p := openTestSlots(t)
	store := collections.NewStore(collections.Options{})

	for _, id := range []string{"not-a-uuid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"} {
		if err := p.Load(id, store); !errors.Is(err, ErrSlotNotFound) {
			t.Errorf("Load(%q) error = %v, want ErrSlotNotFound", id, err)
		}
		if _, err := p.Info(id); !errors.Is(err, ErrSlotNotFound) {
			t.Errorf("Info(%q) error = %v, want ErrSlotNotFound", id, err)
		}
		if _, err := p.Replace(id, store); !errors.Is(err, ErrSlotNotFound) {
			t.Errorf("Replace(%q) error = %v, want ErrSlotNotFound", id, err)
		}
	}
}

func TestSlotsVerify(t *testing.T) {
	p := openTestSlots(t)
	s, _ := sampleStore(t)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if _, err := p.Save(name, s); err != nil {
			t.Fatal(err)
		}
	}

	problems, err := p.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if problems != nil {
		t.Errorf("Verify() problems = %v", problems)
	}

	bad, err := p.Save("bad", s)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.db.Exec("UPDATE slots SET data = ? WHERE id = ?", []byte("garbage!"), bad.ID); err != nil {
		t.Fatal(err)
	}
	problems, err = p.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 1 || !errors.Is(problems[bad.ID], ErrBadMagic) {
		t.Errorf("Verify() problems = %v, want one bad-magic slot", problems)
	}
}

func TestSlotsVerifyReportsUndercountedRefs(t *testing.T) {
	p := openTestSlots(t)
	s, _ := sampleStore(t)
	info, err := p.Save("slot", s)
	if err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	for i := range snap.Objects {
		snap.Objects[i].Refs = 0
	}
	data, err := MarshalSnapshot(snap)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.db.Exec("UPDATE slots SET data = ? WHERE id = ?", data, info.ID); err != nil {
		t.Fatal(err)
	}

	problems, err := p.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(problems[info.ID], collections.ErrInvalidSnapshot) {
		t.Errorf("Verify() problems = %v, want ErrInvalidSnapshot for %s", problems, info.ID)
	}
}
