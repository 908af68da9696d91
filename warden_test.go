//go:build !windows

package warden

import (
	"context"
	"testing"
	"time"
)

func TestEmbeddedSupervisor(t *testing.T) {
	c := DefaultConfig(t.TempDir())
	c.Daemon.Interval = 50 * time.Millisecond
	c.Daemon.TermGrace = 500 * time.Millisecond
	if err := c.EnsureStateDir(); err != nil {
		t.Fatal(err)
	}

	s := New(c, nil)
	s.Start()
	defer s.Stop()

	ctx := context.Background()
	resp, err := s.Submit(ctx, Request{Op: OpCreate, Create: CreateSpec{Script: "sleep 3600", Name: "embedded"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.IDs) != 1 {
		t.Fatalf("ids = %v", resp.IDs)
	}

	resp, err = s.Submit(ctx, Request{Op: OpList})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.List) != 1 || resp.List[0].Name != "embedded" {
		t.Fatalf("list = %+v", resp.List)
	}
}

func TestHandlerMounts(t *testing.T) {
	c := DefaultConfig(t.TempDir())
	if err := c.EnsureStateDir(); err != nil {
		t.Fatal(err)
	}
	s := New(c, nil)
	s.Start()
	defer s.Stop()

	h, err := Handler(s, c)
	if err != nil {
		t.Fatal(err)
	}
	if h == nil {
		t.Fatal("nil handler")
	}
}
