package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allowAll() OriginValidator {
	return OriginValidatorFunc(func(string) bool { return true })
}

func newTestServer(t *testing.T, m *Manager) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(m.HandleWebSocket))
	t.Cleanup(func() {
		_ = m.Shutdown(context.Background())
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func waitForClients(t *testing.T, m *Manager, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return m.ConnectedClients() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesClients(t *testing.T) {
	m := NewManager(allowAll())
	url := newTestServer(t, m)

	a := dial(t, url)
	b := dial(t, url)
	waitForClients(t, m, 2)

	m.Reload("posts/hello")

	for _, conn := range []*websocket.Conn{a, b} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err)

		var msg UpdateMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, TypeReload, msg.Type)
		assert.Equal(t, "posts/hello", msg.Target)
		assert.False(t, msg.Timestamp.IsZero())
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	m := NewManager(allowAll())
	url := newTestServer(t, m)

	conn := dial(t, url)
	waitForClients(t, m, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	waitForClients(t, m, 0)
}

func TestOriginRejected(t *testing.T) {
	m := NewManager(OriginValidatorFunc(func(origin string) bool { return origin == "http://ok.test" }))
	url := newTestServer(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.test"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPerIPLimit(t *testing.T) {
	m := NewManager(allowAll(), WithMaxPerIP(1))
	url := newTestServer(t, m)

	dial(t, url)
	waitForClients(t, m, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestShutdown(t *testing.T) {
	m := NewManager(allowAll())
	url := newTestServer(t, m)

	dial(t, url)
	waitForClients(t, m, 1)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 0, m.ConnectedClients())

	rec := httptest.NewRecorder()
	m.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	m.Reload("ignored")
}
