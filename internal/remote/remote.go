package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/warden/internal/api"
	"github.com/loykin/warden/internal/config"
)

// DefaultTimeout bounds one forwarded request.
const DefaultTimeout = 10 * time.Second

// Client forwards a control request to a peer's HTTP endpoint and returns
// its response verbatim. The peer's token rides in the "token" header.
type Client struct {
	http *http.Client
}

func New() *Client {
	return &Client{http: &http.Client{Timeout: DefaultTimeout}}
}

// Result is the peer's verbatim response.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
}

// Forward sends method+path (e.g. GET /list) to the peer. Refused
// connections and deadline hits map onto the API error kinds.
func (c *Client) Forward(ctx context.Context, srv config.Server, method, path string, body []byte) (*Result, error) {
	url := strings.TrimRight(srv.Address, "/") + path
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if srv.Token != "" {
		req.Header.Set("token", srv.Token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err)
	}
	return &Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        b,
	}, nil
}

func classify(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", api.ErrPeerTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", api.ErrPeerTimeout, err)
	}
	return fmt.Errorf("%w: %v", api.ErrPeerUnreachable, err)
}
