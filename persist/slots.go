package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chloeruka/jcontainers/collections"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	_ "modernc.org/sqlite"
)

// ErrSlotNotFound indicates the requested save slot doesn't exist.
var ErrSlotNotFound = errors.New("save slot not found")

// SlotInfo describes one stored snapshot.
type SlotInfo struct {
	ID      string
	Name    string
	Objects int
	Size    int
	SavedAt time.Time
}

// Slots keeps named store snapshots in a SQLite database.
type Slots struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenSlots opens (creating if needed) the slot database at dbPath.
func OpenSlots(dbPath string) (*Slots, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS slots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		objects INTEGER NOT NULL,
		saved_at INTEGER NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Slots{db: db, dbPath: dbPath}, nil
}

// Path returns the database file.
func (p *Slots) Path() string { return p.dbPath }

// Close closes the database connection.
func (p *Slots) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Save snapshots s into a new slot and returns its description.
func (p *Slots) Save(name string, s *collections.Store) (SlotInfo, error) {
	return p.put(uuid.NewString(), name, s.Snapshot())
}

// Replace overwrites an existing slot with a fresh snapshot of s.
func (p *Slots) Replace(id string, s *collections.Store) (SlotInfo, error) {
	info, err := p.Info(id)
	if err != nil {
		return SlotInfo{}, err
	}
	return p.put(info.ID, info.Name, s.Snapshot())
}

func (p *Slots) put(id, name string, snap *collections.Snapshot) (SlotInfo, error) {
	data, err := MarshalSnapshot(snap)
	if err != nil {
		return SlotInfo{}, err
	}
	info := SlotInfo{
		ID:      id,
		Name:    name,
		Objects: len(snap.Objects),
		Size:    len(data),
		SavedAt: time.Now(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err = p.db.Exec(
		"INSERT OR REPLACE INTO slots (id, name, objects, saved_at, data) VALUES (?, ?, ?, ?, ?)",
		info.ID, info.Name, info.Objects, info.SavedAt.UnixNano(), data,
	)
	if err != nil {
		return SlotInfo{}, fmt.Errorf("saving slot: %w", err)
	}
	log.Infof("saved slot %s (%q, %d objects)", info.ID, info.Name, info.Objects)
	return info, nil
}

// Snapshot reads and decodes the snapshot stored in slot id.
func (p *Slots) Snapshot(id string) (*collections.Snapshot, error) {
	key, err := slotKey(id)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = p.db.QueryRow("SELECT data FROM slots WHERE id = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, id)
		}
		return nil, fmt.Errorf("querying slot: %w", err)
	}
	return UnmarshalSnapshot(data)
}

// Load restores slot id into s, which must be empty.
func (p *Slots) Load(id string, s *collections.Store) error {
	snap, err := p.Snapshot(id)
	if err != nil {
		return err
	}
	if err := s.Restore(snap); err != nil {
		return fmt.Errorf("restoring slot %s: %w", id, err)
	}
	log.Infof("loaded slot %s", id)
	return nil
}

// Info returns the description of slot id.
func (p *Slots) Info(id string) (SlotInfo, error) {
	key, err := slotKey(id)
	if err != nil {
		return SlotInfo{}, err
	}
	row := p.db.QueryRow("SELECT id, name, objects, length(data), saved_at FROM slots WHERE id = ?", key)
	info, err := scanInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SlotInfo{}, fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}
	return info, err
}

// List returns every slot, most recently saved first.
func (p *Slots) List() ([]SlotInfo, error) {
	rows, err := p.db.Query("SELECT id, name, objects, length(data), saved_at FROM slots ORDER BY saved_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("listing slots: %w", err)
	}
	defer rows.Close()

	var out []SlotInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing slots: %w", err)
	}
	return out, nil
}

// Delete removes slot id.
func (p *Slots) Delete(id string) error {
	key, err := slotKey(id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := p.db.Exec("DELETE FROM slots WHERE id = ?", key)
	if err != nil {
		return fmt.Errorf("deleting slot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}
	log.Infof("deleted slot %s", id)
	return nil
}

// Verify decodes every slot into a scratch store, several at a time, and
// returns the problems found keyed by slot id. A nil map means every slot
// loaded cleanly.
func (p *Slots) Verify(ctx context.Context) (map[string]error, error) {
	slots, err := p.List()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	problems := make(map[string]error)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, info := range slots {
		info := info
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.Load(info.ID, collections.NewStore(collections.Options{})); err != nil {
				mu.Lock()
				problems[info.ID] = err
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(problems) == 0 {
		return nil, nil
	}
	return problems, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInfo(row rowScanner) (SlotInfo, error) {
	var info SlotInfo
	var savedAt int64
	if err := row.Scan(&info.ID, &info.Name, &info.Objects, &info.Size, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SlotInfo{}, err
		}
		return SlotInfo{}, fmt.Errorf("reading slot row: %w", err)
	}
	info.SavedAt = time.Unix(0, savedAt)
	return info, nil
}

// slotKey normalizes a slot id; anything that is not a UUID names no slot.
func slotKey(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrSlotNotFound, id)
	}
	return u.String(), nil
}
