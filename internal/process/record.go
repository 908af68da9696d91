package process

import (
	"time"
)

// Status values a record moves through. There is no "starting": a launch
// either returns a pid synchronously or fails.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusCrashed = "crashed"
)

// DefaultCrashLimit caps consecutive non-zero exits before a record latches
// to crashed and is no longer auto-restarted.
const DefaultCrashLimit = 10

// Watch describes an optional recursive filesystem watch that triggers a
// reload of the record when anything under Path changes.
type Watch struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Stats is the last sampled resource usage. Values may be stale; the sampler
// overwrites them on each successful tick.
type Stats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Record is the supervisor's per-child entity. The supervisor loop is the
// only writer; everything handed outside the loop is a copy.
type Record struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Script    string            `json:"script"`
	Path      string            `json:"path"`
	Env       map[string]string `json:"env"`
	Watch     Watch             `json:"watch"`
	MaxMemory uint64            `json:"max_memory"` // bytes, 0 = no ceiling
	Workers   string            `json:"workers,omitempty"`

	Status     string    `json:"status"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Restarts   uint64    `json:"restarts"`
	CrashValue uint64    `json:"crash_value"`
	CrashLimit uint64    `json:"crash_limit"`
	Stats      Stats     `json:"stats"`
}

// Clone returns a deep copy safe to hand outside the supervisor loop.
func (r *Record) Clone() *Record {
	c := *r
	c.Env = make(map[string]string, len(r.Env))
	for k, v := range r.Env {
		c.Env[k] = v
	}
	return &c
}

// Running reports whether the record currently claims a live child.
func (r *Record) Running() bool { return r.Status == StatusRunning }

// Uptime is the wall time since the last successful launch, zero when the
// record is not running.
func (r *Record) Uptime(now time.Time) time.Duration {
	if !r.Running() || r.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(r.StartedAt)
}
