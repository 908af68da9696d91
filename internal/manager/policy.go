package manager

import (
	"log/slog"
	"time"

	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/process"
)

// stableUptime is the minimum time a child must stay up before its crash
// counter and backoff state are cleared.
const stableUptime = 30 * time.Second

// backoffBase and backoffCap bound the relaunch backoff curve:
// min(base * 2^attempts, cap).
const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 4 * time.Second
)

func backoffDelay(attempts uint64) time.Duration {
	if attempts > 3 {
		return backoffCap
	}
	d := backoffBase << attempts
	if d > backoffCap {
		return backoffCap
	}
	return d
}

// onExit applies the restart decision table to a child-exit event delivered
// by the waiter goroutine. Events whose epoch no longer matches were already
// handled by a user command terminating the child; they are dropped, which is
// how a user command wins over a concurrent reaper-initiated restart.
func (m *Manager) onExit(ev exitEvent) {
	rec, ok := m.table.Get(ev.id)
	if !ok || m.epochs[ev.id] != ev.epoch || !rec.Running() {
		return
	}
	pid := rec.PID
	m.sampler.Forget(pid)
	delete(m.cmds, ev.id)
	rec.PID = 0
	metrics.IncStop(rec.Name)

	if ev.code == 0 {
		rec.Status = process.StatusStopped
		delete(m.backoffs, ev.id)
		m.dropWatcher(ev.id)
		m.record(history.EventStop, rec, 0, "")
		slog.Info("process exited", "id", rec.ID, "name", rec.Name)
		return
	}

	rec.CrashValue++
	rec.Status = process.StatusCrashed
	metrics.IncCrash(rec.Name)
	m.record(history.EventCrash, rec, ev.code, "")
	slog.Warn("process crashed", "id", rec.ID, "name", rec.Name, "exit_code", ev.code, "crash_value", rec.CrashValue)

	if rec.CrashValue >= rec.CrashLimit {
		// Latched: only a user command revives it.
		rec.CrashValue = rec.CrashLimit
		delete(m.backoffs, ev.id)
		m.dropWatcher(ev.id)
		m.record(history.EventCrash, rec, ev.code, "crash limit reached")
		slog.Error("process latched crashed", "id", rec.ID, "name", rec.Name, "crash_limit", rec.CrashLimit)
		return
	}
	m.scheduleRelaunch(ev.id)
}

// scheduleRelaunch arms a backoff timer that posts a retry event back into
// the loop. The epoch snapshot invalidates the retry if a user command
// touches the record in the meantime.
func (m *Manager) scheduleRelaunch(id int64) {
	attempts := m.backoffs[id]
	m.backoffs[id] = attempts + 1
	epoch := m.epochs[id]
	delay := backoffDelay(attempts)
	time.AfterFunc(delay, func() {
		select {
		case m.retryCh <- retryEvent{id: id, epoch: epoch}:
		case <-m.done:
		}
	})
}

// onRetry relaunches a crash-pending record once its backoff expires.
func (m *Manager) onRetry(ev retryEvent) {
	rec, ok := m.table.Get(ev.id)
	if !ok || m.epochs[ev.id] != ev.epoch {
		return
	}
	if rec.Status != process.StatusCrashed || rec.CrashValue == 0 || rec.CrashValue >= rec.CrashLimit {
		return
	}
	rec.Restarts++
	metrics.IncRestart(rec.Name)
	m.record(history.EventRestart, rec, 0, "crash relaunch")
	if err := m.launch(rec); err != nil {
		slog.Warn("crash relaunch failed", "id", rec.ID, "name", rec.Name, "error", err)
		rec.CrashValue++
		if rec.CrashValue >= rec.CrashLimit {
			rec.CrashValue = rec.CrashLimit
			delete(m.backoffs, ev.id)
			m.dropWatcher(ev.id)
			slog.Error("process latched crashed", "id", rec.ID, "name", rec.Name, "crash_limit", rec.CrashLimit)
			return
		}
		m.scheduleRelaunch(ev.id)
	}
}

// onWatchFired reloads a record whose watched tree changed. The crash counter
// is untouched by contract.
func (m *Manager) onWatchFired(id int64) {
	rec, ok := m.table.Get(id)
	if !ok || !rec.Running() {
		return
	}
	slog.Info("watch triggered reload", "id", rec.ID, "name", rec.Name)
	m.terminate(rec)
	rec.Restarts++
	metrics.IncRestart(rec.Name)
	m.record(history.EventRestart, rec, 0, "watch")
	if err := m.launch(rec); err != nil {
		rec.Status = process.StatusCrashed
		slog.Warn("watch relaunch failed", "id", rec.ID, "name", rec.Name, "error", err)
	}
}

// onTick is the reaper/sampler pass: stats, memory ceiling, stability reset.
// Per-record sampling errors leave stats stale and never abort the tick.
func (m *Manager) onTick() {
	now := time.Now()
	running := 0
	m.table.Iter(func(rec *process.Record) bool {
		if !rec.Running() {
			return true
		}
		if !process.Alive(rec.PID) {
			// Exited; the waiter goroutine delivers the authoritative event.
			return true
		}
		running++

		if u, err := m.sampler.Sample(rec.PID); err == nil {
			rec.Stats = process.Stats{CPUPercent: u.CPUPercent, RSSBytes: u.RSSBytes}
			metrics.SetUsage(rec.Name, u.CPUPercent, u.RSSBytes)

			if rec.MaxMemory > 0 && u.RSSBytes > rec.MaxMemory {
				slog.Warn("memory ceiling exceeded", "id", rec.ID, "name", rec.Name,
					"rss", u.RSSBytes, "limit", rec.MaxMemory)
				metrics.IncMemoryKill(rec.Name)
				m.record(history.EventMemoryKill, rec, 0, "")
				// Terminate without touching the epoch: the waiter's exit
				// event then flows through onExit as a non-zero exit.
				process.Terminate(rec.PID, m.termGrace())
				return true
			}
		}

		if rec.Uptime(now) >= stableUptime && (rec.CrashValue > 0 || m.backoffs[rec.ID] > 0) {
			rec.CrashValue = 0
			delete(m.backoffs, rec.ID)
		}
		return true
	})
	metrics.SetRunning(running)
}
