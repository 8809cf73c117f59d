package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/orvibo-bridge/internal/events"
	"github.com/muurk/orvibo-bridge/internal/protocol"
	"github.com/muurk/orvibo-bridge/internal/server"
	"github.com/muurk/orvibo-bridge/internal/session"
	"github.com/muurk/orvibo-bridge/internal/version"
)

// Client talks to a running bridge's control API
type Client struct {
	baseURL *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient creates a client for addr, either host:port or a full http URL
func NewClient(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid API address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API address %q: scheme must be http or https", addr)
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// Devices lists every device the bridge knows
func (c *Client) Devices(ctx context.Context) ([]session.DeviceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/devices"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var devices []session.DeviceInfo
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		return nil, fmt.Errorf("failed to decode device list: %w", err)
	}
	return devices, nil
}

// SendOrder asks the bridge to send an order to a device. An unknown device
// yields an error wrapping server.ErrNoSuchDevice.
func (c *Client) SendOrder(ctx context.Context, uid, order string, values protocol.OrderValues) error {
	body, err := json.Marshal(OrderRequest{
		Order:  order,
		Value1: values.Value1,
		Value2: values.Value2,
		Value3: values.Value3,
		Value4: values.Value4,
	})
	if err != nil {
		return err
	}

	path := "/api/devices/" + url.PathEscape(uid) + "/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", server.ErrNoSuchDevice, uid)
	default:
		return responseError(resp)
	}
}

// Events subscribes to the bridge event stream. The channel is closed when
// ctx is cancelled or the connection drops.
func (c *Client) Events(ctx context.Context) (<-chan events.Envelope, error) {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/events"

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	ws, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open event stream: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}

	out := make(chan events.Envelope, events.DefaultBuffer)

	go func() {
		<-ctx.Done()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = ws.Close()
	}()

	go func() {
		defer close(out)
		for {
			var env events.Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return fmt.Errorf("bridge returned %s: %s", resp.Status, e.Error)
	}
	return fmt.Errorf("bridge returned %s", resp.Status)
}
