package registry

import (
	"strconv"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/process"
)

// Table is the authoritative in-memory registry of process records, keyed by
// id and by name. It is not synchronized: the supervisor loop is its sole
// owner and all access is serialized through that loop.
type Table struct {
	byID   map[int64]*process.Record
	byName map[string]int64
	order  []int64 // insertion order for iteration
	nextID int64   // monotonic; never reused within a daemon lifetime
}

func New() *Table {
	return &Table{
		byID:   make(map[int64]*process.Record),
		byName: make(map[string]int64),
	}
}

// NextID returns the id the next insert will receive without consuming it.
func (t *Table) NextID() int64 { return t.nextID }

// Insert adds rec under a fresh id (when rec.ID < 0) or the given id (as
// restore does). Uniqueness of both keys is enforced.
func (t *Table) Insert(rec *process.Record) error {
	if _, ok := t.byName[rec.Name]; ok {
		return api.ErrNameTaken
	}
	if rec.ID < 0 {
		rec.ID = t.nextID
	} else if _, ok := t.byID[rec.ID]; ok {
		return api.ErrIDTaken
	}
	if rec.ID >= t.nextID {
		t.nextID = rec.ID + 1
	}
	t.byID[rec.ID] = rec
	t.byName[rec.Name] = rec.ID
	t.order = append(t.order, rec.ID)
	return nil
}

// Get returns the record with the given id.
func (t *Table) Get(id int64) (*process.Record, bool) {
	r, ok := t.byID[id]
	return r, ok
}

// GetByRef resolves a decimal id or a name; an all-digit ref is tried as an
// id first, then as a name.
func (t *Table) GetByRef(ref api.Ref) (*process.Record, error) {
	s := string(ref)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if r, ok := t.byID[id]; ok {
			return r, nil
		}
	}
	if id, ok := t.byName[s]; ok {
		return t.byID[id], nil
	}
	return nil, api.ErrNotFound
}

// Rename changes the record's name atomically; the old name stays valid until
// the new one is known to be free.
func (t *Table) Rename(id int64, newName string) error {
	rec, ok := t.byID[id]
	if !ok {
		return api.ErrNotFound
	}
	if other, taken := t.byName[newName]; taken {
		if other == id {
			return nil
		}
		return api.ErrNameTaken
	}
	delete(t.byName, rec.Name)
	rec.Name = newName
	t.byName[newName] = id
	return nil
}

// Remove deletes the record. Outstanding references are invalid afterwards.
func (t *Table) Remove(id int64) {
	rec, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byID, id)
	delete(t.byName, rec.Name)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Iter visits records in insertion order; returning false stops the walk.
func (t *Table) Iter(fn func(*process.Record) bool) {
	for _, id := range t.order {
		if !fn(t.byID[id]) {
			return
		}
	}
}

// Len reports the record count.
func (t *Table) Len() int { return len(t.byID) }

// EnsureNextID raises the id counter; restore uses it so ids issued before a
// daemon restart are never handed out again.
func (t *Table) EnsureNextID(n int64) {
	if n > t.nextID {
		t.nextID = n
	}
}

// Reset reinitialises the id counter. It refuses while records exist.
func (t *Table) Reset() error {
	if len(t.byID) != 0 {
		return api.ErrTableNotEmpty
	}
	t.nextID = 0
	return nil
}
