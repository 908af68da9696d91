package manager

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/dump"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/logstore"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/process"
	"github.com/loykin/warden/internal/registry"
	"github.com/loykin/warden/internal/watcher"
)

// Manager is the supervisor loop: the single owner of the process table.
// External callers submit api.Request values and await a typed reply; the
// loop serializes them against the sampler tick, child-exit events, and
// file-watcher events. No lock guards the table because only the loop
// goroutine touches it.
type Manager struct {
	cfg      *config.Config
	table    *registry.Table
	launcher *process.Launcher
	logs     *logstore.Store
	dumps    *dump.Store
	sampler  *metrics.Sampler
	sink     history.Sink

	reqCh   chan submission
	exitCh  chan exitEvent
	watchCh chan watcher.Event
	retryCh chan retryEvent

	cmds     map[int64]*exec.Cmd
	epochs   map[int64]uint64 // increments on every launch; stale events are dropped
	watchers map[int64]*watcher.Watcher
	backoffs map[int64]uint64 // consecutive relaunch attempts feeding the backoff curve

	startedAt time.Time
	done      chan struct{}
	finished  chan struct{}
}

type submission struct {
	req   api.Request
	reply chan outcome
}

type outcome struct {
	resp api.Response
	err  error
}

type exitEvent struct {
	id    int64
	epoch uint64
	code  int
}

type retryEvent struct {
	id    int64
	epoch uint64
}

// New wires a Manager from parsed configuration. The history sink may be nil.
func New(cfg *config.Config, sink history.Sink) *Manager {
	logs := logstore.New(cfg.Runner.LogPath)
	return &Manager{
		cfg:      cfg,
		table:    registry.New(),
		launcher: &process.Launcher{Shell: cfg.Runner.Shell, Args: cfg.Runner.Args, Logs: logs},
		logs:     logs,
		dumps:    dump.New(cfg.DumpPath()),
		sampler:  metrics.NewSampler(),
		sink:     sink,
		reqCh:    make(chan submission, 64),
		exitCh:   make(chan exitEvent, 64),
		watchCh:  make(chan watcher.Event, 64),
		retryCh:  make(chan retryEvent, 64),
		cmds:     make(map[int64]*exec.Cmd),
		epochs:   make(map[int64]uint64),
		watchers: make(map[int64]*watcher.Watcher),
		backoffs: make(map[int64]uint64),
	}
}

// Start launches the loop goroutine.
func (m *Manager) Start() {
	m.startedAt = time.Now()
	m.done = make(chan struct{})
	m.finished = make(chan struct{})
	go m.run()
}

// Stop terminates every running child, tears watchers down, and waits for the
// loop to drain.
func (m *Manager) Stop() {
	close(m.done)
	<-m.finished
}

// Submit sends one control request to the loop and awaits the reply. A
// cancelled ctx abandons the wait but the command still completes inside the
// loop; its reply is discarded.
func (m *Manager) Submit(ctx context.Context, req api.Request) (api.Response, error) {
	s := submission{req: req, reply: make(chan outcome, 1)}
	select {
	case m.reqCh <- s:
	case <-ctx.Done():
		return api.Response{}, ctx.Err()
	}
	select {
	case out := <-s.reply:
		return out.resp, out.err
	case <-ctx.Done():
		return api.Response{}, ctx.Err()
	}
}

func (m *Manager) run() {
	defer close(m.finished)
	interval := m.cfg.Daemon.Interval
	if interval <= 0 {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-m.done:
			m.shutdown()
			return
		case s := <-m.reqCh:
			resp, err := m.handle(s.req)
			s.reply <- outcome{resp: resp, err: err}
		case ev := <-m.exitCh:
			m.onExit(ev)
		case ev := <-m.watchCh:
			m.onWatchFired(ev.ID)
		case ev := <-m.retryCh:
			m.onRetry(ev)
		case <-tick.C:
			m.onTick()
		}
	}
}

// shutdown terminates children so no child outlives its supervisor; the next
// daemon start rebuilds from the dumpfile.
func (m *Manager) shutdown() {
	m.table.Iter(func(r *process.Record) bool {
		if r.Running() {
			process.Terminate(r.PID, m.termGrace())
		}
		return true
	})
	for id, w := range m.watchers {
		w.Close()
		delete(m.watchers, id)
	}
	if m.sink != nil {
		_ = m.sink.Close()
	}
}

func (m *Manager) termGrace() time.Duration {
	if m.cfg.Daemon.TermGrace > 0 {
		return m.cfg.Daemon.TermGrace
	}
	return 5 * time.Second
}

func (m *Manager) crashLimit() uint64 {
	if m.cfg.Daemon.CrashLimit > 0 {
		return m.cfg.Daemon.CrashLimit
	}
	return process.DefaultCrashLimit
}

// launch spawns the record's child and installs the exit waiter. The caller
// decides how failures propagate.
func (m *Manager) launch(rec *process.Record) error {
	cmd, err := m.launcher.Launch(rec)
	if err != nil {
		return err
	}
	m.epochs[rec.ID]++
	epoch := m.epochs[rec.ID]
	m.cmds[rec.ID] = cmd
	rec.PID = cmd.Process.Pid
	rec.Status = process.StatusRunning
	rec.StartedAt = time.Now()

	go func(id int64, epoch uint64, c *exec.Cmd) {
		err := c.Wait()
		code := 0
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
			if code < 0 {
				// killed by signal
				code = 128
			}
		} else if err != nil {
			code = 1
		}
		m.exitCh <- exitEvent{id: id, epoch: epoch, code: code}
	}(rec.ID, epoch, cmd)

	m.ensureWatcher(rec)
	metrics.IncStart(rec.Name)
	m.record(history.EventStart, rec, 0, "")
	slog.Info("process started", "id", rec.ID, "name", rec.Name, "pid", rec.PID)
	return nil
}

// ensureWatcher creates the record's file watcher when enabled and absent.
func (m *Manager) ensureWatcher(rec *process.Record) {
	if !rec.Watch.Enabled {
		return
	}
	if _, ok := m.watchers[rec.ID]; ok {
		return
	}
	root := rec.Watch.Path
	if root == "" {
		root = rec.Path
	} else if rec.Path != "" && !os.IsPathSeparator(root[0]) {
		root = rec.Path + string(os.PathSeparator) + root
	}
	w, err := watcher.New(rec.ID, root, watcher.DefaultDebounce, m.watchCh)
	if err != nil {
		slog.Warn("watch setup failed", "id", rec.ID, "path", root, "error", err)
		return
	}
	m.watchers[rec.ID] = w
}

func (m *Manager) dropWatcher(id int64) {
	if w, ok := m.watchers[id]; ok {
		w.Close()
		delete(m.watchers, id)
	}
}

// terminate stops the record's child synchronously and bumps the epoch so the
// waiter's exit event is recognized as already handled.
func (m *Manager) terminate(rec *process.Record) {
	if !rec.Running() {
		return
	}
	pid := rec.PID
	m.epochs[rec.ID]++ // invalidate the in-flight waiter event
	process.Terminate(pid, m.termGrace())
	m.sampler.Forget(pid)
	delete(m.cmds, rec.ID)
	metrics.IncStop(rec.Name)
	m.record(history.EventStop, rec, 0, "")
	rec.PID = 0
}

func (m *Manager) record(t history.EventType, rec *process.Record, code int, detail string) {
	if m.sink == nil {
		return
	}
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		RecordID:   rec.ID,
		Name:       rec.Name,
		PID:        rec.PID,
		ExitCode:   code,
		Detail:     detail,
	}
	if err := m.sink.Send(context.Background(), e); err != nil {
		slog.Debug("history sink send failed", "event", t, "error", err)
	}
}
