package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/config"
)

func TestForwardAttachesToken(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("token")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New()
	res, err := c.Forward(context.Background(), config.Server{Address: srv.URL, Token: "s3cret"}, http.MethodGet, "/list", nil)
	if err != nil {
		t.Fatal(err)
	}
	if gotToken != "s3cret" {
		t.Fatalf("token header = %q", gotToken)
	}
	if res.Status != http.StatusOK || string(res.Body) != `{"ok":true}` {
		t.Fatalf("result = %+v", res)
	}
}

func TestForwardUnreachable(t *testing.T) {
	c := New()
	_, err := c.Forward(context.Background(), config.Server{Address: "http://127.0.0.1:1"}, http.MethodGet, "/list", nil)
	if !errors.Is(err, api.ErrPeerUnreachable) {
		t.Fatalf("want ErrPeerUnreachable, got %v", err)
	}
}

func TestForwardTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	c := New()
	c.http.Timeout = 100 * time.Millisecond
	_, err := c.Forward(context.Background(), config.Server{Address: srv.URL}, http.MethodGet, "/list", nil)
	if !errors.Is(err, api.ErrPeerTimeout) {
		t.Fatalf("want ErrPeerTimeout, got %v", err)
	}
}

func TestForwardRelaysErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"process not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := New()
	res, err := c.Forward(context.Background(), config.Server{Address: srv.URL}, http.MethodGet, "/process/9/info", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != http.StatusNotFound {
		t.Fatalf("status = %d", res.Status)
	}
}
