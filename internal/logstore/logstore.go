package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/warden/internal/api"
)

// DefaultTailLines is returned when a logs request does not ask for a count.
const DefaultTailLines = 15

// Store owns the per-record stdout/stderr files under a single directory.
// File names embed the record id, so renaming a record never touches them.
type Store struct {
	Dir string
}

func New(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) OutPath(id int64) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%d-out.log", id))
}

func (s *Store) ErrPath(id int64) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%d-err.log", id))
}

// Open creates (or reopens for append) both log files for a record.
func (s *Store) Open(id int64) (*os.File, *os.File, error) {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return nil, nil, err
	}
	out, err := os.OpenFile(s.OutPath(id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, err
	}
	errf, err := os.OpenFile(s.ErrPath(id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		_ = out.Close()
		return nil, nil, err
	}
	return out, errf, nil
}

// Tail returns the last n lines of the given stream ("out" or "err").
// A missing file yields no lines rather than an error: the record may simply
// never have been launched.
func (s *Store) Tail(id int64, stream string, n int) ([]string, error) {
	if n <= 0 {
		n = DefaultTailLines
	}
	var path string
	switch stream {
	case "err":
		path = s.ErrPath(id)
	default:
		path = s.OutPath(id)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &api.IOError{Op: "log read", Err: err}
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Flush truncates both files for the record.
func (s *Store) Flush(id int64) error {
	for _, p := range []string{s.OutPath(id), s.ErrPath(id)} {
		if err := os.Truncate(p, 0); err != nil && !os.IsNotExist(err) {
			return &api.IOError{Op: "log flush", Err: err}
		}
	}
	return nil
}

// Remove deletes both files; used when a record is removed.
func (s *Store) Remove(id int64) {
	_ = os.Remove(s.OutPath(id))
	_ = os.Remove(s.ErrPath(id))
}
