package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/config"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/llm/llmtest"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/registry"
	"github.com/weiawesome/wes-io-live/workspace-service/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New(
		registry.NewFactory(store.NewMemoryStore(), llmtest.New(), pubsub.NopPublisher{}, config.DefaultRoomConfig()),
		registry.Config{},
	)
	router := gin.New()
	NewHandler(reg, config.DefaultWebSocketConfig()).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		reg.Shutdown(ctx)
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, roomID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + roomID + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads frames until one has the wanted type and, when text is
// not empty, that text.
func readUntil(t *testing.T, conn *websocket.Conn, typ, text string) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f map[string]interface{}
		require.NoError(t, conn.ReadJSON(&f))
		if f["type"] != typ {
			continue
		}
		if text != "" && f["text"] != text {
			continue
		}
		return f
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
}

func TestPlainRequestGets426(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/rooms/r1/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	alice := dial(t, srv, "r1")
	send(t, alice, map[string]string{"type": "hello", "clientId": "c-alice", "user": "alice"})
	presence := readUntil(t, alice, domain.MsgTypePresence, "")
	assert.Equal(t, float64(1), presence["count"])

	bob := dial(t, srv, "r1")
	readUntil(t, alice, domain.MsgTypePresence, "")

	send(t, alice, map[string]string{"type": "chat", "user": "alice", "text": "hello room"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		f := readUntil(t, conn, domain.MsgTypeChat, "hello room")
		assert.Equal(t, "alice", f["user"])
	}

	send(t, bob, map[string]string{"type": "ping"})
	readUntil(t, bob, domain.MsgTypePong, "")

	resp, err := http.Get(srv.URL + "/rooms/r1/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "room-r1.json")

	var snap domain.RoomSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "r1", snap.RoomID)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "hello room", snap.History[0].Text)
}

func TestRoomsAreIsolated(t *testing.T) {
	srv := newTestServer(t)

	a := dial(t, srv, "room-a")
	b := dial(t, srv, "room-b")
	readUntil(t, a, domain.MsgTypePresence, "")
	readUntil(t, b, domain.MsgTypePresence, "")

	send(t, a, map[string]string{"type": "chat", "user": "alice", "text": "only in a"})
	readUntil(t, a, domain.MsgTypeChat, "only in a")

	send(t, b, map[string]string{"type": "hello", "user": "bob"})
	f := readUntil(t, b, domain.MsgTypeMemoryUpdate, "")
	assert.NotNil(t, f["pinned"])

	resp, err := http.Get(srv.URL + "/rooms/room-b/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap domain.RoomSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Empty(t, snap.History)
}
