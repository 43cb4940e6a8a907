package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func startServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return c
}

func TestHubDeliversToUser(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub()
	go hub.Run()
	srv := startServer(t, hub)

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")
	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, time.Second, 10*time.Millisecond)
	assert.True(t, hub.IsOnline("alice"))
	assert.False(t, hub.IsOnline("carol"))

	hub.BroadcastToUser("alice", NotificationMessage{Type: "notification", Notification: map[string]string{"title": "Hi"}})

	_ = alice.SetReadDeadline(time.Now().Add(time.Second))
	var got NotificationMessage
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, "notification", got.Type)

	hub.Broadcast(map[string]string{"type": "ping"})
	_ = bob.SetReadDeadline(time.Now().Add(time.Second))
	var all map[string]string
	require.NoError(t, bob.ReadJSON(&all))
	assert.Equal(t, "ping", all["type"])

	require.NoError(t, bob.Close())
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Stop()
	_ = alice.SetReadDeadline(time.Now().Add(time.Second))
	for {
		// Drain until the server closes the connection.
		if _, _, err := alice.ReadMessage(); err != nil {
			break
		}
	}
	alice.Close()
	srv.Close()
}

func TestServeAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	hub := NewHub()
	go hub.Run()
	hub.Stop()
	hub.Stop()

	srv := startServer(t, hub)
	c := dial(t, srv, "late")
	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
	c.Close()
	srv.Close()
	assert.Equal(t, 0, hub.GetClientCount())
}
