// Package testhelpers provides common utilities and helper functions for testing the GoChat server.
//
// This package contains reusable test utilities shared by the server tests. It
// provides functions for dialing WebSocket endpoints, sending inbound events and
// reading outbound events, which may arrive coalesced in a single frame.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:3000"

// Envelope is an event read from the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WSClient wraps a test WebSocket connection and buffers events from
// coalesced frames.
type WSClient struct {
	Conn    *websocket.Conn
	pending []Envelope
}

// WebSocketURL converts an httptest server URL into its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*WSClient, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, resp, err
	}
	return &WSClient{Conn: conn}, resp, nil
}

// MustConnect dials url and fails the test on error. The connection is closed
// when the test ends.
func MustConnect(t *testing.T, url string) *WSClient {
	t.Helper()
	c, _, err := ConnectWebSocket(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Conn.Close() })
	return c
}

// SendEvent writes an inbound event with an optional payload.
func (c *WSClient) SendEvent(event string, data any) error {
	frame := map[string]any{"event": event}
	if data != nil {
		frame["data"] = data
	}
	return c.Conn.WriteJSON(frame)
}

// Join sends a join event for username.
func (c *WSClient) Join(username string) error {
	return c.SendEvent("join", map[string]string{"username": username})
}

// Say sends a send event with content.
func (c *WSClient) Say(content string) error {
	return c.SendEvent("send", map[string]string{"content": content})
}

// Next returns the next event, waiting at most timeout.
func (c *WSClient) Next(timeout time.Duration) (Envelope, error) {
	if len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		return ev, nil
	}

	if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Envelope{}, err
	}
	_, raw, err := c.Conn.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}

	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var ev Envelope
		if err := json.Unmarshal(line, &ev); err != nil {
			return Envelope{}, err
		}
		c.pending = append(c.pending, ev)
	}
	return c.Next(timeout)
}

// Expect reads events until one named event arrives and decodes its data into
// out when out is non-nil. Other events are skipped.
func (c *WSClient) Expect(t *testing.T, event string, out any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := c.Next(time.Until(deadline))
		require.NoError(t, err, "waiting for %q", event)
		if ev.Event != event {
			continue
		}
		if out != nil {
			require.NoError(t, json.Unmarshal(ev.Data, out))
		}
		return
	}
	t.Fatalf("timed out waiting for %q", event)
}

// ExpectNone asserts that no event named event arrives within wait. A read
// deadline expiring breaks the connection, so call it last on a client.
func (c *WSClient) ExpectNone(t *testing.T, event string, wait time.Duration) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		ev, err := c.Next(remaining)
		if err != nil {
			return
		}
		require.NotEqual(t, event, ev.Event, "unexpected %q event", event)
	}
}

// ExpectClosed drains the connection until the server closes it.
func (c *WSClient) ExpectClosed(t *testing.T, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		require.True(t, time.Now().Before(deadline), "connection still open")
		if _, err := c.Next(time.Until(deadline)); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatal("connection still open")
			}
			return
		}
	}
}
