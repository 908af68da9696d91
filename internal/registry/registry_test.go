package registry

import (
	"errors"
	"testing"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/process"
)

func rec(name string) *process.Record {
	return &process.Record{ID: -1, Name: name, Script: "true", Status: process.StatusStopped}
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	tb := New()
	a, b := rec("a"), rec("b")
	if err := tb.Insert(a); err != nil {
		t.Fatal(err)
	}
	if err := tb.Insert(b); err != nil {
		t.Fatal(err)
	}
	if a.ID != 0 || b.ID != 1 {
		t.Fatalf("ids = %d, %d", a.ID, b.ID)
	}
	tb.Remove(b.ID)
	c := rec("c")
	if err := tb.Insert(c); err != nil {
		t.Fatal(err)
	}
	if c.ID != 2 {
		t.Fatalf("removed ids must not be reused: got %d", c.ID)
	}
}

func TestInsertRejectsDuplicates(t *testing.T) {
	tb := New()
	if err := tb.Insert(rec("a")); err != nil {
		t.Fatal(err)
	}
	if err := tb.Insert(rec("a")); !errors.Is(err, api.ErrNameTaken) {
		t.Fatalf("want ErrNameTaken, got %v", err)
	}
	dup := rec("z")
	dup.ID = 0
	if err := tb.Insert(dup); !errors.Is(err, api.ErrIDTaken) {
		t.Fatalf("want ErrIDTaken, got %v", err)
	}
}

func TestGetByRef(t *testing.T) {
	tb := New()
	a := rec("web")
	_ = tb.Insert(a)
	// numeric name colliding with an id: id wins
	n := rec("0")
	_ = tb.Insert(n)

	got, err := tb.GetByRef("0")
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Fatalf("ref \"0\" should resolve by id first")
	}
	got, err = tb.GetByRef("web")
	if err != nil || got != a {
		t.Fatalf("name lookup failed: %v", err)
	}
	if _, err := tb.GetByRef("missing"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRenameAtomicity(t *testing.T) {
	tb := New()
	a, b := rec("a"), rec("b")
	_ = tb.Insert(a)
	_ = tb.Insert(b)

	if err := tb.Rename(b.ID, "a"); !errors.Is(err, api.ErrNameTaken) {
		t.Fatalf("want ErrNameTaken, got %v", err)
	}
	// both names unchanged after the failed rename
	if got, _ := tb.GetByRef("a"); got != a {
		t.Fatal("name a no longer resolves to the original record")
	}
	if got, _ := tb.GetByRef("b"); got != b {
		t.Fatal("name b no longer resolves to the original record")
	}

	if err := tb.Rename(b.ID, "c"); err != nil {
		t.Fatal(err)
	}
	if _, err := tb.GetByRef("b"); !errors.Is(err, api.ErrNotFound) {
		t.Fatal("old name still resolves after rename")
	}
	if got, _ := tb.GetByRef("c"); got != b {
		t.Fatal("new name does not resolve")
	}
}

func TestIterInsertionOrder(t *testing.T) {
	tb := New()
	for _, n := range []string{"x", "y", "z"} {
		_ = tb.Insert(rec(n))
	}
	tb.Remove(1)
	var names []string
	tb.Iter(func(r *process.Record) bool {
		names = append(names, r.Name)
		return true
	})
	if len(names) != 2 || names[0] != "x" || names[1] != "z" {
		t.Fatalf("order = %v", names)
	}
}

func TestResetRequiresEmptyTable(t *testing.T) {
	tb := New()
	_ = tb.Insert(rec("a"))
	if err := tb.Reset(); !errors.Is(err, api.ErrTableNotEmpty) {
		t.Fatalf("want ErrTableNotEmpty, got %v", err)
	}
	tb.Remove(0)
	if err := tb.Reset(); err != nil {
		t.Fatal(err)
	}
	fresh := rec("fresh")
	_ = tb.Insert(fresh)
	if fresh.ID != 0 {
		t.Fatalf("id counter not reset: got %d", fresh.ID)
	}
}
