package manager

import (
	"testing"
	"time"
)

func TestBackoffDelayCurve(t *testing.T) {
	cases := []struct {
		attempts uint64
		want     time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 4 * time.Second},
		{100, 4 * time.Second},
	}
	for _, c := range cases {
		if got := backoffDelay(c.attempts); got != c.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
	// monotonic, bounded
	prev := time.Duration(0)
	for i := uint64(0); i < 10; i++ {
		d := backoffDelay(i)
		if d < prev {
			t.Fatalf("backoff not monotonic at %d", i)
		}
		if d > backoffCap {
			t.Fatalf("backoff exceeds cap at %d", i)
		}
		prev = d
	}
}

func TestParsePortRange(t *testing.T) {
	if p, err := parsePortRange("", 3); err != nil || p != nil {
		t.Fatalf("empty range: %v %v", p, err)
	}
	p, err := parsePortRange("3000-3002", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != 3 || p[0] != 3000 || p[2] != 3002 {
		t.Fatalf("ports = %v", p)
	}
	if _, err := parsePortRange("3000-3002", 2); err == nil {
		t.Fatal("size mismatch accepted")
	}
	p, err = parsePortRange("9000", 2)
	if err != nil {
		t.Fatal(err)
	}
	if p[0] != 9000 || p[1] != 9000 {
		t.Fatalf("ports = %v", p)
	}
	if _, err := parsePortRange("abc", 2); err == nil {
		t.Fatal("garbage accepted")
	}
	if _, err := parsePortRange("5-2", 4); err == nil {
		t.Fatal("inverted range accepted")
	}
}

func TestDefaultName(t *testing.T) {
	if got := defaultName("node /srv/app/server.js"); got != "node" {
		t.Fatalf("got %q", got)
	}
	if got := defaultName("/usr/bin/python3 -m http.server"); got != "python3" {
		t.Fatalf("got %q", got)
	}
	if got := defaultName("   "); got != "process" {
		t.Fatalf("got %q", got)
	}
}
