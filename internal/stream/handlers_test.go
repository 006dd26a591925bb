package stream

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-stride/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "stream-secret"

func newStreamApp(hub *Hub) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, auth.JWTMiddleware(testSecret))
	return app
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.SignToken(testSecret, userID, time.Minute)
	require.NoError(t, err)
	return token
}

func serve(t *testing.T, hub *Hub) string {
	t.Helper()
	app := newStreamApp(hub)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String()
}

func dial(t *testing.T, base, userID, topic string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/"+topic, header)
	require.NoError(t, err)
	return conn
}

func waitForClients(t *testing.T, hub *Hub, topic string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.clientCount(topic) == n },
		time.Second, 5*time.Millisecond, "expected %d clients on %s", n, topic)
}

func TestStreamRequiresToken(t *testing.T) {
	app := newStreamApp(NewHub(nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stream/ws/user-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamRejectsOtherUsersTopic(t *testing.T) {
	app := newStreamApp(NewHub(nil))

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/user-1", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "user-2"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStreamUpgradeRequired(t *testing.T) {
	app := newStreamApp(NewHub(nil))

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/user-1", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "user-1"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestStreamWebsocketBroadcast(t *testing.T) {
	hub := NewHub(nil)
	base := serve(t, hub)

	conn := dial(t, base, "user-1", "user-1")
	defer conn.Close()
	waitForClients(t, hub, "user-1", 1)

	hub.Broadcast("user-1", []byte("hello"))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))

	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("client")))
}

func TestStreamTokenFromQuery(t *testing.T) {
	hub := NewHub(nil)
	base := serve(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/user-4?access_token="+tokenFor(t, "user-4"), nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, hub, "user-4", 1)
}

func TestStreamUnregisterOnClose(t *testing.T) {
	hub := NewHub(nil)
	base := serve(t, hub)

	conn := dial(t, base, "user-2", "user-2")
	waitForClients(t, hub, "user-2", 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	waitForClients(t, hub, "user-2", 0)
	hub.Broadcast("user-2", []byte("ping"))
}
