//go:build !windows

package process

import (
	"bytes"
	"os"
	"strconv"
	"syscall"
	"time"
)

func sysProcAttrDetached() *syscall.SysProcAttr {
	// Own session: the child survives daemon signals and we can address its
	// whole process group with a negative pid.
	return &syscall.SysProcAttr{Setsid: true}
}

// Alive probes pid liveness with signal 0. A zombie child that has exited but
// not been reaped reports as dead.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if isZombie(pid) {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// isZombie reads /proc/<pid>/status on Linux; elsewhere it reports false.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// Terminate delivers SIGTERM to the pid's process group, escalating to
// SIGKILL when the group is still alive after grace. It returns once the
// leader is gone or the post-kill settle window elapses.
func Terminate(pid int, grace time.Duration) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	settle := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(settle) {
		if !Alive(pid) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
