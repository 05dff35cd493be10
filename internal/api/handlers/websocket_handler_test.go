package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/services/realtime"
)

const secret = "ws-secret"

func newWSServer(t *testing.T, bypass bool) (*realtime.Hub, string) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	hub := realtime.NewHub(realtime.Config{JoinRequestTimeout: time.Minute, Logger: logger})
	h := NewWebSocketHandler(hub, middleware.NewAuthenticator(secret, bypass, logger), []string{"http://localhost:3000"}, logger)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	return conn
}

func TestWebSocketHandler_Auth(t *testing.T) {
	hub, url := newWSServer(t, false)
	token, err := middleware.SignToken(secret, "user-1", "Alice", time.Hour)
	require.NoError(t, err)

	conn := dialWS(t, url)
	require.NoError(t, conn.WriteJSON(AuthMessage{Type: "auth", Token: token}))

	var resp AuthResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "auth_success", resp.Type)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, "Alice", resp.Username)

	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, models.EventRoomsList, env.Event)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestWebSocketHandler_Rejects(t *testing.T) {
	hub, url := newWSServer(t, false)

	for name, msg := range map[string]interface{}{
		"bad token": AuthMessage{Type: "auth", Token: "garbage"},
		"not auth":  map[string]string{"type": "hello"},
	} {
		t.Run(name, func(t *testing.T) {
			conn := dialWS(t, url)
			require.NoError(t, conn.WriteJSON(msg))

			var resp map[string]string
			require.NoError(t, conn.ReadJSON(&resp))
			assert.NotEmpty(t, resp["error"])

			_, _, err := conn.ReadMessage()
			assert.Error(t, err, "connection must be closed")
		})
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func TestWebSocketHandler_Bypass(t *testing.T) {
	_, url := newWSServer(t, true)

	conn := dialWS(t, url)
	require.NoError(t, conn.WriteJSON(AuthMessage{Type: "auth", Token: middleware.BypassToken}))
	var resp AuthResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "auth_success", resp.Type)
	assert.NotEmpty(t, resp.UserID)
}

func TestWebSocketHandler_CheckOrigin(t *testing.T) {
	_, url := newWSServer(t, true)

	header := map[string][]string{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, 403, resp.StatusCode)
	}
}
