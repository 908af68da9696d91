package metrics

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Usage is one resource sample for a child process.
type Usage struct {
	CPUPercent float64
	RSSBytes   uint64
}

// Sample reads CPU% and RSS for pid. CPU is computed by gopsutil from the
// delta of process time over wall time since the previous sample of the same
// process handle; callers holding a Sampler get a meaningful delta.
func Sample(pid int) (Usage, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, fmt.Errorf("process handle for pid %d: %w", pid, err)
	}
	return sampleProc(p)
}

func sampleProc(p *process.Process) (Usage, error) {
	var u Usage
	if cpu, err := p.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return u, fmt.Errorf("memory info: %w", err)
	}
	u.RSSBytes = mem.RSS
	return u, nil
}

// Sampler keeps per-pid process handles between ticks so CPUPercent measures
// the interval since the previous tick instead of since process start.
type Sampler struct {
	handles map[int]*process.Process
}

func NewSampler() *Sampler {
	return &Sampler{handles: make(map[int]*process.Process)}
}

// Sample reads usage for pid, reusing the handle from previous ticks.
func (s *Sampler) Sample(pid int) (Usage, error) {
	h, ok := s.handles[pid]
	if !ok {
		var err error
		h, err = process.NewProcess(int32(pid))
		if err != nil {
			return Usage{}, fmt.Errorf("process handle for pid %d: %w", pid, err)
		}
		s.handles[pid] = h
	}
	u, err := sampleProc(h)
	if err != nil {
		delete(s.handles, pid)
	}
	return u, err
}

// Forget drops the cached handle for a pid that exited.
func (s *Sampler) Forget(pid int) { delete(s.handles, pid) }
