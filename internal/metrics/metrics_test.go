package metrics

import (
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotent(t *testing.T) {
	r := prometheus.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatal(err)
	}
	if err := Register(r); err != nil {
		t.Fatalf("second Register must tolerate duplicates: %v", err)
	}
}

func TestCountersDoNotPanic(t *testing.T) {
	IncStart("t")
	IncStop("t")
	IncRestart("t")
	IncCrash("t")
	IncMemoryKill("t")
	SetUsage("t", 12.5, 4096)
	SetRunning(3)
	Forget("t")
}

func TestSamplerReadsOwnProcess(t *testing.T) {
	s := NewSampler()
	u, err := s.Sample(os.Getpid())
	if err != nil {
		t.Fatalf("sample self: %v", err)
	}
	if u.RSSBytes == 0 {
		t.Fatal("rss should be non-zero for a live process")
	}
	// second tick reuses the handle
	if _, err := s.Sample(os.Getpid()); err != nil {
		t.Fatal(err)
	}
}

func TestSamplerMissingPID(t *testing.T) {
	s := NewSampler()
	if _, err := s.Sample(1 << 30); err == nil {
		t.Fatal("expected error for absent pid")
	}
}
