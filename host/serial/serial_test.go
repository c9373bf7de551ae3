package serial

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, 250000, cfg.Baud)
	assert.Equal(t, 100, cfg.ReadTimeout)
	assert.Equal(t, DriverTarm, cfg.Driver)
	assert.False(t, cfg.IsWebSocket())

	assert.True(t, DefaultConfig("ws://bridge.local/pwm").IsWebSocket())
	assert.True(t, DefaultConfig("wss://bridge.local/pwm").IsWebSocket())
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(nil)
	assert.Error(t, err)

	_, err = Open(&Config{})
	assert.Error(t, err)

	cfg := DefaultConfig("/dev/null")
	cfg.Driver = "usbip"
	_, err = Open(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown serial driver")

	_, err = OpenWebSocket("http://bridge.local/pwm", "", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}

// echoBridge answers every binary message with the same bytes and
// interleaves a text message the port must skip
func echoBridge(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "pwm" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte("status")); err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocketPortRoundTrip(t *testing.T) {
	srv := echoBridge(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	cfg := DefaultConfig(wsURL)
	cfg.Username = "pwm"
	cfg.Password = "secret"
	port, err := Open(cfg)
	require.NoError(t, err)
	defer port.Close()

	n, err := port.Write([]byte{0x05, 0x10, 0xaa, 0xbb, 0x7e})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Small reads drain one message across calls
	buf := make([]byte, 3)
	n, err = port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x10, 0xaa}, buf[:n])
	n, err = port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbb, 0x7e}, buf[:n])
}

func TestWebSocketPortFlushDropsRemainder(t *testing.T) {
	srv := echoBridge(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	port, err := OpenWebSocket(wsURL, "pwm", "secret", false)
	require.NoError(t, err)
	defer port.Close()

	_, err = port.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = port.Read(buf)
	require.NoError(t, err)
	require.NoError(t, port.Flush())

	_, err = port.Write([]byte{9})
	require.NoError(t, err)
	n, err := port.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, buf[:n])
}

func TestWebSocketRequiresAuth(t *testing.T) {
	srv := echoBridge(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, err := OpenWebSocket(wsURL, "pwm", "wrong", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestWebSocketReadAfterClose(t *testing.T) {
	srv := echoBridge(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	port, err := OpenWebSocket(wsURL, "pwm", "secret", false)
	require.NoError(t, err)
	require.NoError(t, port.Close())

	buf := make([]byte, 8)
	_, err = port.Read(buf)
	require.Error(t, err)
	_, err = port.Read(buf)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
