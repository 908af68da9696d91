package dump

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/process"
)

// Record is the persisted shape of a process record: the fields needed to
// reconstruct the table. Volatile fields (pid, started_at, stats,
// crash_value) are intentionally absent; status_at_dump drives relaunch on
// restore.
type Record struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Script       string            `json:"script"`
	Path         string            `json:"path"`
	Env          map[string]string `json:"env,omitempty"`
	Watch        process.Watch     `json:"watch"`
	MaxMemory    uint64            `json:"max_memory,omitempty"`
	Workers      string            `json:"workers,omitempty"`
	CrashLimit   uint64            `json:"crash_limit,omitempty"`
	StatusAtDump string            `json:"status_at_dump"`
}

// File is the on-disk dump document.
type File struct {
	NextID  int64    `json:"next_id"`
	Records []Record `json:"records"`
}

// FromRecord captures the persistent fields of a live record.
func FromRecord(r *process.Record) Record {
	return Record{
		ID:           r.ID,
		Name:         r.Name,
		Script:       r.Script,
		Path:         r.Path,
		Env:          r.Env,
		Watch:        r.Watch,
		MaxMemory:    r.MaxMemory,
		Workers:      r.Workers,
		CrashLimit:   r.CrashLimit,
		StatusAtDump: r.Status,
	}
}

// ToRecord rebuilds a table record. crash_value starts at zero by contract;
// status is settled by the caller (running entries are relaunched).
func (d Record) ToRecord() *process.Record {
	limit := d.CrashLimit
	if limit == 0 {
		limit = process.DefaultCrashLimit
	}
	env := d.Env
	if env == nil {
		env = map[string]string{}
	}
	return &process.Record{
		ID:         d.ID,
		Name:       d.Name,
		Script:     d.Script,
		Path:       d.Path,
		Env:        env,
		Watch:      d.Watch,
		MaxMemory:  d.MaxMemory,
		Workers:    d.Workers,
		CrashLimit: limit,
		Status:     process.StatusStopped,
	}
}

// Store reads and writes the dumpfile in a state directory.
type Store struct {
	Path string
}

func New(path string) *Store { return &Store{Path: path} }

// Write serialises f to a temporary file and renames it over the live
// dumpfile, so readers never observe a torn file and a failed write leaves
// the previous dump intact.
func (s *Store) Write(f *File) error {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return &api.IOError{Op: "dump encode", Err: err}
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &api.IOError{Op: "dump write", Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".dump-*")
	if err != nil {
		return &api.IOError{Op: "dump write", Err: err}
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return &api.IOError{Op: "dump write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return &api.IOError{Op: "dump write", Err: err}
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		_ = os.Remove(tmp.Name())
		return &api.IOError{Op: "dump rename", Err: err}
	}
	return nil
}

// Read loads the dumpfile. A missing file yields an empty document. A file
// that no longer parses is moved aside with a timestamp suffix and an empty
// document is returned, so a corrupted dump never wedges daemon startup.
func (s *Store) Read() (*File, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, &api.IOError{Op: "dump read", Err: err}
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		backup := fmt.Sprintf("%s.corrupted.%s", s.Path, time.Now().UTC().Format("20060102_150405"))
		_ = os.Rename(s.Path, backup)
		return &File{}, nil
	}
	return &f, nil
}
