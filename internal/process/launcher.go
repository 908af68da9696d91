package process

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/env"
	"github.com/loykin/warden/internal/logstore"
)

// Launcher spawns children through the configured shell with stdout/stderr
// attached to the record's log files. The child is placed in its own session
// so signals delivered to the daemon do not cascade.
type Launcher struct {
	Shell string   // e.g. /bin/sh
	Args  []string // e.g. ["-c"]
	Logs  *logstore.Store
}

// Launch starts the record's script and returns the running *exec.Cmd. The
// caller owns the Wait. Failures are reported as *api.LaunchError.
func (l *Launcher) Launch(rec *Record) (*exec.Cmd, error) {
	if rec.Path != "" {
		fi, err := os.Stat(rec.Path)
		if err != nil || !fi.IsDir() {
			return nil, &api.LaunchError{Reason: "bad working directory", Err: err}
		}
	}

	outF, errF, err := l.Logs.Open(rec.ID)
	if err != nil {
		return nil, &api.LaunchError{Reason: "cannot open log", Err: err}
	}

	shell := l.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	args := l.Args
	if len(args) == 0 {
		args = []string{"-c"}
	}
	// ok: intentional execution of the user-supplied script via the shell
	// #nosec G204
	cmd := exec.Command(shell, append(append([]string(nil), args...), rec.Script)...)
	cmd.Dir = rec.Path
	cmd.Env = env.Compose(rec.Path, rec.Env)
	cmd.Stdout = outF
	cmd.Stderr = errF
	cmd.Stdin = nil
	cmd.SysProcAttr = sysProcAttrDetached()

	err = cmd.Start()
	// The child holds its own descriptors after fork; our copies can go
	// either way now.
	_ = outF.Close()
	_ = errF.Close()
	if err != nil {
		return nil, &api.LaunchError{Reason: fmt.Sprintf("cannot spawn %s", shell), Err: err}
	}
	return cmd, nil
}

// CommandLine is the literal relaunch command for the record, as cstart
// reports it.
func (l *Launcher) CommandLine(script string) string {
	shell := l.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	args := l.Args
	if len(args) == 0 {
		args = []string{"-c"}
	}
	out := shell
	for _, a := range args {
		out += " " + a
	}
	return fmt.Sprintf("%s '%s'", out, script)
}
