package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chloeruka/jcontainers/collections"
	"github.com/chloeruka/jcontainers/config"
	"github.com/chloeruka/jcontainers/persist"
)

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Dir = dir

	slots, err := persist.OpenSlots(cfg.DatabasePath())
	if err != nil {
		t.Fatal(err)
	}
	defer slots.Close()

	src := collections.NewStore(cfg.StoreOptions())
	m := src.NewMap()
	m.SetValueForKey("name", collections.StringValue("Lydia"))
	f := src.NewFormMap()
	f.SetValueForKey(0x14, collections.ObjectValue(m))
	snapFile := filepath.Join(dir, "in.jcsv")
	if err := persist.SaveFile(snapFile, src); err != nil {
		t.Fatal(err)
	}

	if err := run(cfg, slots, "import", []string{snapFile, "imported"}); err != nil {
		t.Fatalf("import: %v", err)
	}
	list, err := slots.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("List() = %v, %v", list, err)
	}
	id := list[0].ID

	for _, cmd := range [][]string{
		{"list"},
		{"dump", id},
		{"check", id},
		{"verify"},
		{"export", id, filepath.Join(dir, "out.jcsv")},
	} {
		if err := run(cfg, slots, cmd[0], cmd[1:]); err != nil {
			t.Errorf("%s: %v", cmd[0], err)
		}
	}

	out := collections.NewStore(collections.Options{})
	if err := persist.LoadFile(filepath.Join(dir, "out.jcsv"), out); err != nil {
		t.Fatalf("exported file does not load: %v", err)
	}
	if out.LookupMap(m.Handle()) == nil {
		t.Error("exported snapshot lost the map")
	}

	if err := run(cfg, slots, "delete", []string{id}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := run(cfg, slots, "dump", []string{id}); !errors.Is(err, persist.ErrSlotNotFound) {
		t.Errorf("dump after delete: error = %v, want ErrSlotNotFound", err)
	}
}

func TestCommandErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Dir = t.TempDir()
	slots, err := persist.OpenSlots(cfg.DatabasePath())
	if err != nil {
		t.Fatal(err)
	}
	defer slots.Close()

	if err := run(cfg, slots, "dump", nil); err == nil {
		t.Error("dump without a slot should fail")
	}
	if err := run(cfg, slots, "frobnicate", nil); err == nil {
		t.Error("unknown command should fail")
	}
}
