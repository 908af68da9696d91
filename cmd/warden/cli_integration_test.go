//go:build !windows

package main

import (
	"fmt"
	"net"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/manager"
	"github.com/loykin/warden/internal/server"
)

// startTestDaemon runs a real supervisor loop behind an httptest server and
// writes a config.toml pointing the CLI at it.
func startTestDaemon(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	cfg := config.Default(home)
	cfg.Daemon.Interval = 50 * time.Millisecond
	cfg.Daemon.TermGrace = 500 * time.Millisecond
	if err := cfg.EnsureStateDir(); err != nil {
		t.Fatal(err)
	}

	m := manager.New(cfg, nil)
	m.Start()
	t.Cleanup(m.Stop)

	ts := httptest.NewServer(server.NewRouter(m, cfg, config.Servers{}).Handler())
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	content := fmt.Sprintf("[daemon.web]\napi = true\naddress = %q\nport = %s\n", host, port)
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return home
}

func run(t *testing.T, home string, args ...string) error {
	t.Helper()
	root := buildRoot()
	root.SetArgs(append([]string{"--home", home}, args...))
	return root.Execute()
}

func TestCLIStartListStopFlow(t *testing.T) {
	home := startTestDaemon(t)

	if err := run(t, home, "start", "sleep 3600", "--name", "cli-proc"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := run(t, home, "info", "cli-proc"); err != nil {
		t.Fatalf("info: %v", err)
	}
	if err := run(t, home, "list", "--format", "json"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := run(t, home, "stop", "cli-proc"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := run(t, home, "remove", "cli-proc"); err != nil {
		t.Fatalf("remove: %v", err)
	}
}

func TestCLIInfoMissingIsError(t *testing.T) {
	home := startTestDaemon(t)
	if err := run(t, home, "info", "nope"); err == nil {
		t.Fatal("expected daemon-reported error")
	}
}

func TestCLIExportImport(t *testing.T) {
	home := startTestDaemon(t)
	if err := run(t, home, "start", "sleep 3600", "--name", "exp"); err != nil {
		t.Fatalf("start: %v", err)
	}
	out := filepath.Join(t.TempDir(), "procs.toml")
	if err := run(t, home, "export", "all", out); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("export wrote nothing: %v", err)
	}
	if err := run(t, home, "remove", "exp"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := run(t, home, "import", out); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := run(t, home, "info", "exp"); err != nil {
		t.Fatalf("record missing after import: %v", err)
	}
}

func TestCLISaveRestore(t *testing.T) {
	home := startTestDaemon(t)
	if err := run(t, home, "start", "sleep 3600", "--name", "sv"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := run(t, home, "save"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "dump")); err != nil {
		t.Fatalf("dumpfile missing: %v", err)
	}
	if err := run(t, home, "remove", "sv"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := run(t, home, "restore"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := run(t, home, "info", "sv"); err != nil {
		t.Fatalf("record missing after restore: %v", err)
	}
}
