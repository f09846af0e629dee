// Package client is the typed HTTP client for the chatcast daemon API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Dicklesworthstone/chatcast/internal/api"
	"github.com/Dicklesworthstone/chatcast/internal/broadcast"
	"github.com/Dicklesworthstone/chatcast/internal/target"
)

// ErrDaemonUnavailable means nothing answered at the daemon address.
var ErrDaemonUnavailable = errors.New("chatcast daemon is not running")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// Client talks to one daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for addr, a host:port or a full http URL.
func New(addr string, timeout time.Duration) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the daemon URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var opErr interface{ Timeout() bool }
		if errors.As(err, &opErr) && opErr.Timeout() {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		return fmt.Errorf("%w at %s: %w", ErrDaemonUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Health checks that the daemon is up.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Targets returns the target table in dispatch order.
func (c *Client) Targets(ctx context.Context) ([]target.Target, error) {
	var resp []target.Target
	if err := c.do(ctx, http.MethodGet, "/targets", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Broadcast sends message and waits for the cycle to complete.
func (c *Client) Broadcast(ctx context.Context, message string) (*broadcast.Result, error) {
	var resp broadcast.Result
	if err := c.do(ctx, http.MethodPost, "/broadcast", api.BroadcastRequest{Message: message}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetEnabled enables or disables a target.
func (c *Client) SetEnabled(ctx context.Context, id string, on, force bool) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	path := "/targets/" + url.PathEscape(id) + "/enabled"
	if err := c.do(ctx, http.MethodPut, path, api.EnabledRequest{Enabled: on, Force: force}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetLayout changes the layout mode.
func (c *Client) SetLayout(ctx context.Context, layout string) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.do(ctx, http.MethodPut, "/layout", api.LayoutRequest{Layout: layout}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetZoom stores the zoom level and returns the clamped value.
func (c *Client) SetZoom(ctx context.Context, zoom float64) (float64, error) {
	var resp api.ZoomResponse
	if err := c.do(ctx, http.MethodPut, "/zoom", api.ZoomRequest{Zoom: zoom}, &resp); err != nil {
		return 0, err
	}
	return resp.Zoom, nil
}

// Navigate loads rawURL in a target's session and returns the normalized URL.
func (c *Client) Navigate(ctx context.Context, id, rawURL string) (string, error) {
	var resp api.NavigateResponse
	path := "/targets/" + url.PathEscape(id) + "/navigate"
	if err := c.do(ctx, http.MethodPost, path, api.NavigateRequest{URL: rawURL}, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// Inspect opens the page inspector for a target.
func (c *Client) Inspect(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/targets/"+url.PathEscape(id)+"/inspect", nil, nil)
}

// RefreshReadiness restarts readiness polling.
func (c *Client) RefreshReadiness(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/readiness/refresh", nil, nil)
}

// History returns recent dispatch log rows, or those of one cycle when
// cycleID is set.
func (c *Client) History(ctx context.Context, limit int, cycleID string) ([]api.HistoryEntry, error) {
	q := url.Values{}
	if cycleID != "" {
		q.Set("cycle", cycleID)
	} else if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp []api.HistoryEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
