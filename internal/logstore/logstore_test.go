package logstore

import (
	"os"
	"testing"
)

func TestTailReturnsLastLines(t *testing.T) {
	s := New(t.TempDir())
	if err := os.WriteFile(s.OutPath(3), []byte("a\nb\nc\nd\ne\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	lines, err := s.Tail(3, "out", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "d" || lines[1] != "e" {
		t.Fatalf("got %v, want [d e]", lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	s := New(t.TempDir())
	lines, err := s.Tail(99, "err", 10)
	if err != nil || lines != nil {
		t.Fatalf("missing file should yield nil, nil; got %v, %v", lines, err)
	}
}

func TestTailDefaultCount(t *testing.T) {
	s := New(t.TempDir())
	content := ""
	for i := 0; i < 40; i++ {
		content += "line\n"
	}
	if err := os.WriteFile(s.ErrPath(1), []byte(content), 0o640); err != nil {
		t.Fatal(err)
	}
	lines, err := s.Tail(1, "err", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != DefaultTailLines {
		t.Fatalf("got %d lines, want %d", len(lines), DefaultTailLines)
	}
}

func TestFlushTruncates(t *testing.T) {
	s := New(t.TempDir())
	out, errf, err := s.Open(7)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = out.WriteString("stdout data\n")
	_, _ = errf.WriteString("stderr data\n")
	_ = out.Close()
	_ = errf.Close()

	if err := s.Flush(7); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{s.OutPath(7), s.ErrPath(7)} {
		fi, err := os.Stat(p)
		if err != nil {
			t.Fatal(err)
		}
		if fi.Size() != 0 {
			t.Fatalf("%s not truncated: %d bytes", p, fi.Size())
		}
	}
}
