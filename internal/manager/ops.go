package manager

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/dump"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/process"
)

// handle dispatches one control request inside the loop goroutine.
func (m *Manager) handle(req api.Request) (api.Response, error) {
	switch req.Op {
	case api.OpList:
		return m.opList()
	case api.OpInfo:
		return m.opInfo(req.Ref)
	case api.OpEnv:
		return m.opEnv(req.Ref)
	case api.OpCStart:
		return m.opCStart(req.Ref)
	case api.OpCreate:
		return m.opCreate(req.Create)
	case api.OpAction:
		return m.opAction(req.Ref, req.Method)
	case api.OpRename:
		return m.opRename(req.Ref, req.NewName)
	case api.OpAdjust:
		return m.opAdjust(req.Ref, req.Adjust)
	case api.OpLogs:
		return m.opLogs(req.Ref, req.Stream, req.Lines)
	case api.OpSave:
		return m.opSave()
	case api.OpRestore:
		return m.opRestore()
	case api.OpMetrics:
		return m.opMetrics()
	case api.OpReset:
		return api.Response{}, m.table.Reset()
	default:
		return api.Response{}, fmt.Errorf("%w: unknown op %q", api.ErrInvalidArgs, req.Op)
	}
}

func (m *Manager) opList() (api.Response, error) {
	now := time.Now()
	out := make([]api.RecordSummary, 0, m.table.Len())
	m.table.Iter(func(r *process.Record) bool {
		out = append(out, api.RecordSummary{
			ID:       r.ID,
			Name:     r.Name,
			PID:      r.PID,
			Status:   r.Status,
			Restarts: r.Restarts,
			Uptime:   process.FormatDuration(r.Uptime(now)),
			Stats:    api.StatsInfo{CPUPercent: r.Stats.CPUPercent, RSSBytes: r.Stats.RSSBytes},
			Watch:    r.Watch.Path,
		})
		return true
	})
	return api.Response{List: out}, nil
}

func (m *Manager) opInfo(ref api.Ref) (api.Response, error) {
	rec, err := m.table.GetByRef(ref)
	if err != nil {
		return api.Response{}, err
	}
	c := rec.Clone()
	d := &api.RecordDetail{
		ID:         c.ID,
		Name:       c.Name,
		Script:     c.Script,
		Path:       c.Path,
		Env:        c.Env,
		Watch:      api.WatchInfo{Enabled: c.Watch.Enabled, Path: c.Watch.Path},
		MaxMemory:  c.MaxMemory,
		Status:     c.Status,
		PID:        c.PID,
		StartedAt:  c.StartedAt,
		Uptime:     process.FormatDuration(c.Uptime(time.Now())),
		Restarts:   c.Restarts,
		CrashValue: c.CrashValue,
		CrashLimit: c.CrashLimit,
		Stats:      api.StatsInfo{CPUPercent: c.Stats.CPUPercent, RSSBytes: c.Stats.RSSBytes},
		Workers:    c.Workers,
		LogOut:     m.logs.OutPath(c.ID),
		LogErr:     m.logs.ErrPath(c.ID),
		Command:    m.launcher.CommandLine(c.Script),
	}
	return api.Response{Detail: d}, nil
}

func (m *Manager) opEnv(ref api.Ref) (api.Response, error) {
	rec, err := m.table.GetByRef(ref)
	if err != nil {
		return api.Response{}, err
	}
	return api.Response{Env: rec.Clone().Env}, nil
}

func (m *Manager) opCStart(ref api.Ref) (api.Response, error) {
	rec, err := m.table.GetByRef(ref)
	if err != nil {
		return api.Response{}, err
	}
	return api.Response{Command: m.launcher.CommandLine(rec.Script)}, nil
}

func (m *Manager) opCreate(spec api.CreateSpec) (api.Response, error) {
	if strings.TrimSpace(spec.Script) == "" {
		return api.Response{}, fmt.Errorf("%w: script required", api.ErrInvalidArgs)
	}
	maxMem, err := process.ParseMemory(spec.MaxMemory)
	if err != nil {
		return api.Response{}, fmt.Errorf("%w: %v", api.ErrInvalidArgs, err)
	}
	path := spec.Path
	if path == "" {
		path, _ = os.Getwd()
	}

	if spec.Workers == 0 {
		id, err := m.createOne(spec, spec.Name, path, maxMem, nil, "")
		if err != nil {
			return api.Response{}, err
		}
		return api.Response{IDs: []int64{id}}, nil
	}
	if spec.Workers < 2 {
		return api.Response{}, fmt.Errorf("%w: workers must be >= 2", api.ErrInvalidArgs)
	}
	ports, err := parsePortRange(spec.PortRange, spec.Workers)
	if err != nil {
		return api.Response{}, err
	}
	base := spec.Name
	if base == "" {
		base = defaultName(spec.Script)
	}
	ids := make([]int64, 0, spec.Workers)
	for i := 1; i <= spec.Workers; i++ {
		var port *int
		if ports != nil {
			port = &ports[i-1]
		}
		name := fmt.Sprintf("%s-worker-%d", base, i)
		id, err := m.createOne(spec, name, path, maxMem, port, base)
		if err != nil {
			return api.Response{IDs: ids}, err
		}
		ids = append(ids, id)
	}
	return api.Response{IDs: ids}, nil
}

// createOne inserts and launches a single record. If the child fails to spawn
// the record is removed again, so a failed create leaves no record behind
// (the id it was given is not reissued).
func (m *Manager) createOne(spec api.CreateSpec, name, path string, maxMem uint64, port *int, group string) (int64, error) {
	env := make(map[string]string, len(spec.Env)+1)
	for k, v := range spec.Env {
		env[k] = v
	}
	if port != nil {
		env["PORT"] = strconv.Itoa(*port)
	}
	explicitName := name != ""
	if !explicitName {
		name = defaultName(spec.Script)
	}
	rec := &process.Record{
		ID:         -1,
		Name:       name,
		Script:     spec.Script,
		Path:       path,
		Env:        env,
		Watch:      process.Watch{Enabled: spec.Watch != "", Path: spec.Watch},
		MaxMemory:  maxMem,
		Workers:    group,
		CrashLimit: m.crashLimit(),
		Status:     process.StatusStopped,
	}
	if err := m.table.Insert(rec); err != nil {
		if !explicitName {
			// derived default collided; disambiguate with the upcoming id
			rec.Name = fmt.Sprintf("%s-%d", name, m.table.NextID())
			err = m.table.Insert(rec)
		}
		if err != nil {
			return 0, err
		}
	}
	if err := m.launch(rec); err != nil {
		m.table.Remove(rec.ID)
		return 0, err
	}
	return rec.ID, nil
}

func defaultName(script string) string {
	fields := strings.Fields(script)
	if len(fields) == 0 {
		return "process"
	}
	return filepath.Base(fields[0])
}

// parsePortRange expands "a-b" or "p" for n workers; nil means no PORT entry.
func parsePortRange(s string, n int) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if a, b, ok := strings.Cut(s, "-"); ok {
		lo, err1 := strconv.Atoi(strings.TrimSpace(a))
		hi, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 != nil || err2 != nil || lo <= 0 || hi < lo {
			return nil, fmt.Errorf("%w: invalid port range %q", api.ErrInvalidArgs, s)
		}
		if hi-lo+1 != n {
			return nil, fmt.Errorf("%w: port range %q provides %d ports for %d workers", api.ErrInvalidArgs, s, hi-lo+1, n)
		}
		out := make([]int, n)
		for i := range out {
			out[i] = lo + i
		}
		return out, nil
	}
	p, err := strconv.Atoi(s)
	if err != nil || p <= 0 {
		return nil, fmt.Errorf("%w: invalid port %q", api.ErrInvalidArgs, s)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = p
	}
	return out, nil
}

func (m *Manager) opAction(ref api.Ref, method string) (api.Response, error) {
	rec, err := m.table.GetByRef(ref)
	if err != nil {
		if method == api.MethodDelete {
			// removing a missing record is success by contract
			return api.Response{}, nil
		}
		return api.Response{}, err
	}
	switch method {
	case api.MethodStart:
		if rec.Running() {
			return api.Response{}, nil
		}
		rec.CrashValue = 0
		delete(m.backoffs, rec.ID)
		if err := m.launch(rec); err != nil {
			rec.Status = process.StatusCrashed
			return api.Response{}, err
		}
		return api.Response{}, nil
	case api.MethodStop:
		if !rec.Running() {
			if rec.Status == process.StatusCrashed {
				// a stop on a crash-pending record cancels the relaunch
				rec.Status = process.StatusStopped
				rec.CrashValue = 0
				m.epochs[rec.ID]++
				delete(m.backoffs, rec.ID)
				m.dropWatcher(rec.ID)
			}
			return api.Response{}, nil
		}
		m.terminate(rec)
		rec.Status = process.StatusStopped
		rec.CrashValue = 0
		delete(m.backoffs, rec.ID)
		m.dropWatcher(rec.ID)
		return api.Response{}, nil
	case api.MethodRestart, api.MethodReload:
		if rec.Running() {
			m.terminate(rec)
		}
		rec.CrashValue = 0
		delete(m.backoffs, rec.ID)
		rec.Restarts++
		metrics.IncRestart(rec.Name)
		m.record(history.EventRestart, rec, 0, method)
		if err := m.launch(rec); err != nil {
			rec.Status = process.StatusCrashed
			return api.Response{}, err
		}
		return api.Response{}, nil
	case api.MethodFlush:
		return api.Response{}, m.logs.Flush(rec.ID)
	case api.MethodDelete:
		if rec.Running() {
			m.terminate(rec)
			rec.Status = process.StatusStopped
		}
		m.dropWatcher(rec.ID)
		m.epochs[rec.ID]++
		delete(m.backoffs, rec.ID)
		m.table.Remove(rec.ID)
		m.logs.Remove(rec.ID)
		metrics.Forget(rec.Name)
		return api.Response{}, nil
	default:
		return api.Response{}, fmt.Errorf("%w: unknown method %q", api.ErrInvalidArgs, method)
	}
}

func (m *Manager) opRename(ref api.Ref, newName string) (api.Response, error) {
	if strings.TrimSpace(newName) == "" {
		return api.Response{}, fmt.Errorf("%w: empty name", api.ErrInvalidArgs)
	}
	rec, err := m.table.GetByRef(ref)
	if err != nil {
		return api.Response{}, err
	}
	old := rec.Name
	if err := m.table.Rename(rec.ID, newName); err != nil {
		return api.Response{}, err
	}
	if old != newName {
		metrics.Forget(old)
	}
	return api.Response{}, nil
}

func (m *Manager) opAdjust(ref api.Ref, adj api.AdjustSpec) (api.Response, error) {
	if adj.Command == nil && adj.Name == nil {
		return api.Response{}, fmt.Errorf("%w: adjust requires command or name", api.ErrInvalidArgs)
	}
	rec, err := m.table.GetByRef(ref)
	if err != nil {
		return api.Response{}, err
	}
	if adj.Name != nil {
		if _, err := m.opRename(api.Ref(strconv.FormatInt(rec.ID, 10)), *adj.Name); err != nil {
			return api.Response{}, err
		}
	}
	if adj.Command != nil {
		if strings.TrimSpace(*adj.Command) == "" {
			return api.Response{}, fmt.Errorf("%w: empty command", api.ErrInvalidArgs)
		}
		// takes effect on the next launch; the live child is unaffected
		rec.Script = *adj.Command
	}
	return api.Response{}, nil
}

func (m *Manager) opLogs(ref api.Ref, stream string, lines int) (api.Response, error) {
	rec, err := m.table.GetByRef(ref)
	if err != nil {
		return api.Response{}, err
	}
	out, err := m.logs.Tail(rec.ID, stream, lines)
	if err != nil {
		return api.Response{}, err
	}
	return api.Response{Lines: out}, nil
}

func (m *Manager) opSave() (api.Response, error) {
	f := &dump.File{NextID: m.table.NextID()}
	m.table.Iter(func(r *process.Record) bool {
		f.Records = append(f.Records, dump.FromRecord(r))
		return true
	})
	if err := m.dumps.Write(f); err != nil {
		return api.Response{}, err
	}
	slog.Info("state saved", "records", len(f.Records))
	return api.Response{Count: len(f.Records)}, nil
}

func (m *Manager) opRestore() (api.Response, error) {
	f, err := m.dumps.Read()
	if err != nil {
		return api.Response{}, err
	}
	m.table.EnsureNextID(f.NextID)
	restored := 0
	for _, d := range f.Records {
		rec := d.ToRecord()
		if _, taken := m.table.Get(rec.ID); taken {
			rec.ID = -1
		}
		if err := m.table.Insert(rec); err != nil {
			slog.Warn("restore: skipping dump entry", "name", rec.Name, "error", err)
			continue
		}
		restored++
		if d.StatusAtDump == process.StatusRunning {
			if err := m.launch(rec); err != nil {
				// reported, not fatal to the batch
				rec.Status = process.StatusCrashed
				slog.Warn("restore: relaunch failed", "name", rec.Name, "error", err)
			}
		}
	}
	slog.Info("state restored", "records", restored)
	return api.Response{Count: restored}, nil
}

func (m *Manager) opMetrics() (api.Response, error) {
	d := &api.DaemonMetrics{
		PID:       os.Getpid(),
		StartedAt: m.startedAt,
		Uptime:    process.FormatDuration(time.Since(m.startedAt)),
		Processes: m.table.Len(),
	}
	m.table.Iter(func(r *process.Record) bool {
		switch r.Status {
		case process.StatusRunning:
			d.Running++
		case process.StatusCrashed:
			d.Crashed++
		default:
			d.Stopped++
		}
		return true
	})
	if u, err := metrics.Sample(os.Getpid()); err == nil {
		d.CPU = u.CPUPercent
		d.RSS = u.RSSBytes
	}
	return api.Response{Metrics: d}, nil
}
