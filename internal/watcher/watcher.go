package watcher

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces raw filesystem events: a burst of edits within
// the window yields one Event.
const DefaultDebounce = 200 * time.Millisecond

// Event reports that the watched tree of a record changed.
type Event struct {
	ID int64
}

// Watcher is a recursive, debounced filesystem watch bound to one record.
// It never mutates supervisor state; it only posts Events to the channel it
// was given. Created at launch, torn down at stop/remove.
type Watcher struct {
	id       int64
	root     string
	debounce time.Duration
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

// New starts watching root recursively and posts coalesced events to out.
func New(id int64, root string, debounce time.Duration, out chan<- Event) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{id: id, root: root, debounce: debounce, fsw: fsw, done: make(chan struct{})}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	go w.run(out)
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(out chan<- Event) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// New directories join the watch so the recursion stays live.
			if ev.Op.Has(fsnotify.Create) {
				if err := w.addRecursive(ev.Name); err != nil {
					slog.Debug("watcher: add created path", "path", ev.Name, "error", err)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Debug("watcher: fsnotify error", "id", w.id, "error", err)
		case <-fire:
			timer = nil
			fire = nil
			select {
			case out <- Event{ID: w.id}:
			case <-w.done:
				return
			}
		}
	}
}

// Close tears the watch down; no further events are delivered.
func (w *Watcher) Close() {
	close(w.done)
	_ = w.fsw.Close()
}
