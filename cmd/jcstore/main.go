// jcstore - inspect and maintain jcontainers save slots
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chloeruka/jcontainers/collections"
	"github.com/chloeruka/jcontainers/config"
	"github.com/chloeruka/jcontainers/persist"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	configDir := flag.String("config", "", "Directory containing jcontainers.toml (default: search upward from .)")
	dbPath := flag.String("db", "", "Save slot database (overrides storage.database)")
	verbosity := flag.Int("v", 0, "Log verbosity (overrides log.verbosity)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: jcstore [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  list                  List save slots\n")
		fmt.Fprintf(os.Stderr, "  dump <slot>           Print every object stored in a slot\n")
		fmt.Fprintf(os.Stderr, "  check <slot>          Load a slot and report dead references (form ids are kept as saved)\n")
		fmt.Fprintf(os.Stderr, "  verify                Load every slot and report the ones that fail\n")
		fmt.Fprintf(os.Stderr, "  export <slot> <file>  Write a slot to a snapshot file\n")
		fmt.Fprintf(os.Stderr, "  import <file> [name]  Store a snapshot file as a new slot\n")
		fmt.Fprintf(os.Stderr, "  delete <slot>         Remove a slot\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			cfg.Storage.Database = *dbPath
		case "v":
			cfg.Log.Verbosity = *verbosity
		}
	})
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogFile())

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	slots, err := persist.OpenSlots(cfg.DatabasePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer slots.Close()

	if err := run(cfg, slots, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		slots.Close()
		os.Exit(1)
	}
}

func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		return config.Load(dir)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func run(cfg *config.Config, slots *persist.Slots, cmd string, args []string) error {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: expected %d argument(s), got %d", cmd, n, len(args))
		}
		return nil
	}

	switch cmd {
	case "list":
		return listSlots(slots)
	case "dump":
		if err := need(1); err != nil {
			return err
		}
		return dumpSlot(cfg, slots, args[0])
	case "check":
		if err := need(1); err != nil {
			return err
		}
		return checkSlot(cfg, slots, args[0])
	case "verify":
		return verifySlots(slots)
	case "export":
		if err := need(2); err != nil {
			return err
		}
		store := collections.NewStore(cfg.StoreOptions())
		if err := slots.Load(args[0], store); err != nil {
			return err
		}
		return persist.SaveFile(args[1], store)
	case "import":
		if err := need(1); err != nil {
			return err
		}
		store := collections.NewStore(cfg.StoreOptions())
		if err := persist.LoadFile(args[0], store); err != nil {
			return err
		}
		name := args[0]
		if len(args) > 1 {
			name = args[1]
		}
		info, err := slots.Save(name, store)
		if err != nil {
			return err
		}
		fmt.Println(info.ID)
		return nil
	case "delete":
		if err := need(1); err != nil {
			return err
		}
		return slots.Delete(args[0])
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func listSlots(slots *persist.Slots) error {
	list, err := slots.List()
	if err != nil {
		return err
	}
	for _, info := range list {
		fmt.Printf("%s  %-20s  %6d objects  %8d bytes  %s\n",
			info.ID, info.Name, info.Objects, info.Size, info.SavedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func dumpSlot(cfg *config.Config, slots *persist.Slots, id string) error {
	store := collections.NewStore(cfg.StoreOptions())
	if err := slots.Load(id, store); err != nil {
		return err
	}

	for _, h := range store.Registry().Handles() {
		obj := store.Lookup(h)
		if obj == nil {
			continue
		}
		fmt.Printf("#%d %s refs=%d count=%d\n", h, obj.Type(), obj.RefCount(), obj.Count())
		switch o := obj.(type) {
		case *collections.Array:
			for i, v := range o.Values() {
				fmt.Printf("  [%d] %v\n", i, v)
			}
		case *collections.Map:
			for _, e := range o.Entries() {
				fmt.Printf("  %q: %v\n", e.Key, e.Value)
			}
		case *collections.FormMap:
			for _, e := range o.Entries() {
				fmt.Printf("  0x%08X: %v\n", uint32(e.Key), e.Value)
			}
		}
	}
	q := store.Autorelease()
	fmt.Printf("autorelease: %d pending at tick %d\n", q.Count(), q.Tick())
	return nil
}

// checkSlot loads a slot with IdentityResolver: there is no host here to
// re-resolve form ids, so only object references can go dead.
func checkSlot(cfg *config.Config, slots *persist.Slots, id string) error {
	snap, err := slots.Snapshot(id)
	if err != nil {
		return err
	}
	saved := len(snap.Objects)

	store := collections.NewStore(cfg.StoreOptions())
	if err := store.Restore(snap); err != nil {
		return err
	}

	purged := 0
	for _, h := range store.Registry().Handles() {
		if obj := store.Lookup(h); obj != nil {
			purged += obj.PurgeDeadReferences()
		}
	}

	stats := store.Stats()
	fmt.Printf("saved objects:    %d\n", saved)
	fmt.Printf("live objects:     %d (%d arrays, %d maps, %d form maps)\n",
		stats["objects"], stats["arrays"], stats["maps"], stats["formMaps"])
	fmt.Printf("destroyed on load: %d\n", saved-stats["objects"])
	fmt.Printf("dead references:  %d\n", purged)
	fmt.Printf("autorelease:      %d pending\n", stats["autorelease"])
	return nil
}

func verifySlots(slots *persist.Slots) error {
	problems, err := slots.Verify(context.Background())
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		fmt.Println("all slots load cleanly")
		return nil
	}
	var ids []string
	for id, err := range problems {
		ids = append(ids, fmt.Sprintf("%s: %v", id, err))
	}
	return fmt.Errorf("%d slot(s) failed to load:\n  %s", len(problems), strings.Join(ids, "\n  "))
}
