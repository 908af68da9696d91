//go:build !windows

package process

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/logstore"
)

func testLauncher(t *testing.T) *Launcher {
	t.Helper()
	return &Launcher{Shell: "/bin/sh", Args: []string{"-c"}, Logs: logstore.New(t.TempDir())}
}

func TestLaunchWritesStdoutToLogFile(t *testing.T) {
	l := testLauncher(t)
	rec := &Record{ID: 1, Name: "echoer", Script: "echo hello", Path: t.TempDir()}
	cmd, err := l.Launch(rec)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	_ = cmd.Wait()
	b, err := os.ReadFile(l.Logs.OutPath(1))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello\n" {
		t.Fatalf("stdout log = %q", b)
	}
}

func TestLaunchBadWorkingDirectory(t *testing.T) {
	l := testLauncher(t)
	rec := &Record{ID: 2, Script: "true", Path: "/definitely/not/a/dir"}
	_, err := l.Launch(rec)
	var le *api.LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("expected LaunchError, got %v", err)
	}
	if le.Reason != "bad working directory" {
		t.Fatalf("reason = %q", le.Reason)
	}
}

func TestLaunchComposesDotEnv(t *testing.T) {
	l := testLauncher(t)
	dir := t.TempDir()
	if err := os.WriteFile(dir+"/.env", []byte("FROM_DOTENV=dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	rec := &Record{
		ID:     3,
		Script: `echo "$FROM_DOTENV $FROM_RECORD"`,
		Path:   dir,
		Env:    map[string]string{"FROM_RECORD": "record"},
	}
	cmd, err := l.Launch(rec)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	_ = cmd.Wait()
	b, _ := os.ReadFile(l.Logs.OutPath(3))
	if string(b) != "dotenv record\n" {
		t.Fatalf("stdout log = %q", b)
	}
}

func TestTerminateKillsSession(t *testing.T) {
	l := testLauncher(t)
	rec := &Record{ID: 4, Script: "sleep 60", Path: t.TempDir()}
	cmd, err := l.Launch(rec)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	pid := cmd.Process.Pid
	done := make(chan struct{})
	go func() { _ = cmd.Wait(); close(done) }()

	Terminate(pid, 2*time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("child not reaped after Terminate")
	}
	if Alive(pid) {
		t.Fatalf("pid %d still alive", pid)
	}
}

func TestCommandLine(t *testing.T) {
	l := testLauncher(t)
	got := l.CommandLine("npm start")
	if got != "/bin/sh -c 'npm start'" {
		t.Fatalf("got %q", got)
	}
}
