package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// connectURL turns the HTTP base URL into the WebSocket connect endpoint
// with tenant, session and anon query parameters attached.
func connectURL(base, tenant, session, anon string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/v1/connect"
	q := url.Values{}
	q.Set("tenant", tenant)
	q.Set("session", session)
	q.Set("anon", anon)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// orNewID returns v unchanged, or a fresh UUID when v is empty.
func orNewID(v string) string {
	if v != "" {
		return v
	}
	return uuid.NewString()
}

// deliver dials the connect endpoint, drains the initial flags frame,
// writes the given frame, then completes a ping round trip so the
// server has processed the message before the socket closes.
func deliver(ctx context.Context, wsURL string, frame []byte) error {
	sock, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect rejected: %s", resp.Status)
		}
		return err
	}
	defer func() { _ = sock.Close() }()

	// first frame is always the flag snapshot
	if _, _, err := sock.ReadMessage(); err != nil {
		return err
	}
	if err := sock.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}
	if err := sock.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		return err
	}
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			return err
		}
		var pong struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &pong) == nil && pong.Type == "pong" {
			return nil
		}
	}
}
