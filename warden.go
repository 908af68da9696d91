package warden

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/warden/internal/api"
	cfg "github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/history/factory"
	"github.com/loykin/warden/internal/manager"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Request = api.Request

type Response = api.Response

type CreateSpec = api.CreateSpec

type RecordSummary = api.RecordSummary

type RecordDetail = api.RecordDetail

type HistorySink = history.Sink

// Control operations, re-exported for embedders building Requests.
const (
	OpList    = api.OpList
	OpInfo    = api.OpInfo
	OpEnv     = api.OpEnv
	OpCStart  = api.OpCStart
	OpCreate  = api.OpCreate
	OpAction  = api.OpAction
	OpRename  = api.OpRename
	OpAdjust  = api.OpAdjust
	OpLogs    = api.OpLogs
	OpSave    = api.OpSave
	OpRestore = api.OpRestore
	OpMetrics = api.OpMetrics
	OpReset   = api.OpReset
)

// Supervisor is a thin facade over internal/manager.Manager. It provides a
// stable public API for embedding a warden daemon in another program.
type Supervisor struct{ inner *manager.Manager }

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig(stateDir string) *Config { return cfg.Default(stateDir) }

// LoadConfig parses <stateDir>/config.toml over the defaults.
func LoadConfig(stateDir string) (*Config, error) { return cfg.Load(stateDir) }

// New wires a Supervisor. The history sink may be nil; NewHistorySink builds
// one from configuration.
func New(c *Config, sink HistorySink) *Supervisor {
	return &Supervisor{inner: manager.New(c, sink)}
}

// NewHistorySink builds the configured lifecycle-event sink.
func NewHistorySink(c *Config) (HistorySink, error) { return factory.New(c.History) }

func (s *Supervisor) Start() { s.inner.Start() }

func (s *Supervisor) Stop() { s.inner.Stop() }

// Submit sends one control request to the supervisor loop and awaits the
// typed reply.
func (s *Supervisor) Submit(ctx context.Context, req Request) (Response, error) {
	return s.inner.Submit(ctx, req)
}

// Handler returns the HTTP control surface for mounting in any mux.
func Handler(s *Supervisor, c *Config) (http.Handler, error) {
	servers, err := cfg.LoadServers(c.ServersPath())
	if err != nil {
		return nil, err
	}
	return server.NewRouter(s.inner, c, servers).Handler(), nil
}

// NewHTTPServer starts an HTTP server on addr exposing the control surface.
func NewHTTPServer(addr string, s *Supervisor, c *Config) (*http.Server, error) {
	servers, err := cfg.LoadServers(c.ServersPath())
	if err != nil {
		return nil, err
	}
	return server.NewServer(addr, server.NewRouter(s.inner, c, servers)), nil
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It runs in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
