package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a warden daemon's HTTP control surface. When Server is
// set, list, info, create, action, rename and logs are routed through the
// daemon's peer client via /remote/{server}/... and executed on the named
// peer; Env, CStart and Adjust always go to the local daemon.
type Client struct {
	baseURL string
	token   string
	server  string
	http    *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Token   string
	Server  string // non-empty routes through the peer client
	Timeout time.Duration
}

// DefaultBaseURL matches the daemon's default web binding.
const DefaultBaseURL = "http://127.0.0.1:9876"

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		server:  cfg.Server,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// StatusError carries a non-2xx response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("token", c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er ErrorResponse
		_ = json.Unmarshal(b, &er)
		return &StatusError{Status: resp.StatusCode, Message: er.Error}
	}
	if out != nil && len(b) > 0 {
		return json.Unmarshal(b, out)
	}
	return nil
}

// doRaw posts a non-JSON body (rename carries the bare name).
func (c *Client) doRaw(ctx context.Context, method, path, body string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("token", c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er ErrorResponse
		_ = json.Unmarshal(b, &er)
		return &StatusError{Status: resp.StatusCode, Message: er.Error}
	}
	if out != nil && len(b) > 0 {
		return json.Unmarshal(b, out)
	}
	return nil
}

// processPath prefixes a local process path with the remote route when a
// server name is configured.
func (c *Client) processPath(local string) string {
	if c.server == "" {
		return local
	}
	switch {
	case local == "/list":
		return "/remote/" + c.server + "/list"
	case local == "/process/create":
		return "/remote/" + c.server + "/create"
	case strings.HasPrefix(local, "/process/"):
		rest := strings.TrimPrefix(local, "/process/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			return local
		}
		ref, op := parts[0], parts[1]
		switch {
		case op == "info":
			return "/remote/" + c.server + "/info/" + ref
		case op == "action":
			return "/remote/" + c.server + "/action/" + ref
		case op == "rename":
			return "/remote/" + c.server + "/rename/" + ref
		case strings.HasPrefix(op, "logs/"):
			return "/remote/" + c.server + "/logs/" + ref + "/" + strings.TrimPrefix(op, "logs/")
		}
	}
	return local
}

// Health reports whether the daemon answers its liveness probe.
func (c *Client) Health(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	return err == nil
}

func (c *Client) List(ctx context.Context) ([]RecordSummary, error) {
	var out []RecordSummary
	err := c.do(ctx, http.MethodGet, c.processPath("/list"), nil, &out)
	return out, err
}

func (c *Client) Info(ctx context.Context, ref string) (*RecordDetail, error) {
	var out RecordDetail
	err := c.do(ctx, http.MethodGet, c.processPath("/process/"+url.PathEscape(ref)+"/info"), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Env(ctx context.Context, ref string) (map[string]string, error) {
	var out map[string]string
	err := c.do(ctx, http.MethodGet, "/process/"+url.PathEscape(ref)+"/env", nil, &out)
	return out, err
}

func (c *Client) CStart(ctx context.Context, ref string) (string, error) {
	var out struct {
		Command string `json:"command"`
	}
	err := c.do(ctx, http.MethodGet, "/process/"+url.PathEscape(ref)+"/cstart", nil, &out)
	return out.Command, err
}

func (c *Client) Create(ctx context.Context, spec CreateSpec) ([]int64, error) {
	var out struct {
		IDs []int64 `json:"ids"`
	}
	err := c.do(ctx, http.MethodPost, c.processPath("/process/create"), spec, &out)
	return out.IDs, err
}

func (c *Client) Action(ctx context.Context, ref, method string) error {
	body := map[string]string{"method": method}
	return c.do(ctx, http.MethodPost, c.processPath("/process/"+url.PathEscape(ref)+"/action"), body, nil)
}

func (c *Client) Rename(ctx context.Context, ref, newName string) error {
	return c.doRaw(ctx, http.MethodPost, c.processPath("/process/"+url.PathEscape(ref)+"/rename"), newName, nil)
}

func (c *Client) Adjust(ctx context.Context, ref string, adj AdjustSpec) error {
	return c.do(ctx, http.MethodPost, "/process/"+url.PathEscape(ref)+"/adjust", adj, nil)
}

func (c *Client) Logs(ctx context.Context, ref, stream string, lines int) ([]string, error) {
	path := c.processPath("/process/" + url.PathEscape(ref) + "/logs/" + stream)
	if lines > 0 {
		path += "?lines=" + strconv.Itoa(lines)
	}
	var out struct {
		Lines []string `json:"lines"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Lines, err
}

func (c *Client) Save(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodPost, "/daemon/save", nil, &out)
	return out.Count, err
}

func (c *Client) Restore(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodPost, "/daemon/restore", nil, &out)
	return out.Count, err
}

func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/daemon/reset", nil, nil)
}

func (c *Client) Metrics(ctx context.Context) (*DaemonMetrics, error) {
	var out DaemonMetrics
	err := c.do(ctx, http.MethodGet, "/daemon/metrics", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Servers(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/daemon/servers", nil, &out)
	return out, err
}

func (c *Client) AddServer(ctx context.Context, name, address, token string) error {
	body := map[string]string{"name": name, "address": address, "token": token}
	return c.do(ctx, http.MethodPost, "/daemon/servers/add", body, nil)
}

func (c *Client) RemoveServer(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/daemon/servers/"+url.PathEscape(name), nil, nil)
}
