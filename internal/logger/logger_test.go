package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupFileWriter(t *testing.T) {
	old := slog.Default()
	defer slog.SetDefault(old)

	path := filepath.Join(t.TempDir(), "daemon.log")
	c := Config{Level: "debug", Format: "json", File: path}
	closer, err := c.Setup()
	if err != nil {
		t.Fatal(err)
	}
	slog.Info("hello", "k", "v")
	if closer != nil {
		_ = closer.Close()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"msg":"hello"`) {
		t.Fatalf("log file content: %s", b)
	}
}

func TestLevelParsing(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"junk":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := (Config{Level: in}).level(); got != want {
			t.Errorf("level(%q) = %v, want %v", in, got, want)
		}
	}
}
