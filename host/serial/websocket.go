package serial

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket bridge
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketPort carries the serial byte stream over binary WebSocket
// messages, for boards reached through a network serial bridge
type WebSocketPort struct {
	conn *websocket.Conn

	readMu    sync.Mutex
	buf       []byte
	bufOffset int
	closed    bool

	writeMu sync.Mutex
}

// OpenWebSocket dials a bridge with optional HTTP Basic auth
func OpenWebSocket(wsURL, username, password string, skipSSLVerify bool) (*WebSocketPort, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketPort{conn: conn}, nil
}

// Read returns buffered bytes of the last binary message before reading
// the next one. Text messages are skipped. Only one goroutine may read.
func (w *WebSocketPort) Read(p []byte) (int, error) {
	w.readMu.Lock()
	if w.closed {
		w.readMu.Unlock()
		return 0, ErrConnectionClosed
	}
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		w.readMu.Unlock()
		return n, nil
	}
	w.readMu.Unlock()

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.readMu.Lock()
			w.closed = true
			w.readMu.Unlock()
			return 0, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.readMu.Lock()
		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		w.readMu.Unlock()
		return n, nil
	}
}

func (w *WebSocketPort) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the connection; a pending Read returns with an error
func (w *WebSocketPort) Close() error {
	return w.conn.Close()
}

// Flush drops the remainder of the buffered message
func (w *WebSocketPort) Flush() error {
	w.readMu.Lock()
	defer w.readMu.Unlock()
	w.buf = nil
	w.bufOffset = 0
	return nil
}
