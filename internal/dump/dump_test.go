package dump

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/loykin/warden/internal/process"
)

func sample() *process.Record {
	return &process.Record{
		ID:         3,
		Name:       "web",
		Script:     "node server.js",
		Path:       "/srv/web",
		Env:        map[string]string{"PORT": "3000"},
		Watch:      process.Watch{Enabled: true, Path: "src"},
		MaxMemory:  100 << 20,
		CrashLimit: 10,
		Status:     process.StatusRunning,
		PID:        4242,
		Restarts:   2,
		CrashValue: 1,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "dump"))
	in := &File{NextID: 4, Records: []Record{FromRecord(sample())}}
	if err := s.Write(in); err != nil {
		t.Fatal(err)
	}
	out, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if out.NextID != 4 || len(out.Records) != 1 {
		t.Fatalf("bad document: %+v", out)
	}
	if !reflect.DeepEqual(out.Records[0], in.Records[0]) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", out.Records[0], in.Records[0])
	}
	if out.Records[0].StatusAtDump != process.StatusRunning {
		t.Fatal("status_at_dump not preserved")
	}
}

func TestToRecordResetsVolatileFields(t *testing.T) {
	r := FromRecord(sample()).ToRecord()
	if r.CrashValue != 0 {
		t.Fatalf("crash_value = %d, want 0", r.CrashValue)
	}
	if r.PID != 0 || r.Status != process.StatusStopped {
		t.Fatalf("volatile fields not reset: %+v", r)
	}
	if r.Name != "web" || r.Script != "node server.js" || r.MaxMemory != 100<<20 {
		t.Fatalf("persistent fields lost: %+v", r)
	}
}

func TestReadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "dump"))
	f, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if f.NextID != 0 || len(f.Records) != 0 {
		t.Fatalf("expected empty document, got %+v", f)
	}
}

func TestReadCorruptedFileBackedUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump")
	if err := os.WriteFile(path, []byte("{definitely not json"), 0o640); err != nil {
		t.Fatal(err)
	}
	s := New(path)
	f, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Records) != 0 {
		t.Fatalf("expected fresh document, got %+v", f)
	}
	entries, _ := os.ReadDir(dir)
	found := false
	for _, e := range entries {
		if e.Name() != "dump" && len(e.Name()) > 4 {
			found = true
		}
	}
	if !found {
		t.Fatal("corrupted file was not moved aside")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procs.toml")
	in := []Record{FromRecord(sample())}
	if err := Export(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := Import(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d records", len(out))
	}
	got := out[0]
	if got.Name != "web" || got.Script != "node server.js" || got.Path != "/srv/web" {
		t.Fatalf("fields lost: %+v", got)
	}
	if !got.Watch.Enabled || got.Watch.Path != "src" {
		t.Fatalf("watch lost: %+v", got.Watch)
	}
	if got.MaxMemory != 100<<20 {
		t.Fatalf("max_memory = %d", got.MaxMemory)
	}
	if got.Env["PORT"] != "3000" {
		t.Fatalf("env lost: %+v", got.Env)
	}
	if got.ID != -1 {
		t.Fatal("import must not carry ids")
	}
}

func TestImportRejectsMissingScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procs.toml")
	if err := os.WriteFile(path, []byte("[[processes]]\nname = \"x\"\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	if _, err := Import(path); err == nil {
		t.Fatal("expected error for missing script")
	}
}
