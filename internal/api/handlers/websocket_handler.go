package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/services/realtime"
)

const authTimeout = 10 * time.Second

// AuthMessage は接続直後にクライアントが送る認証メッセージです。
type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// AuthResponse は認証成功時にサーバーが返すメッセージです。
type AuthResponse struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// WebSocketHandler はHTTP接続をWebSocketにアップグレードし、認証ハンドシェイクの後に
// 接続を Hub に引き渡します。
type WebSocketHandler struct {
	hub      *realtime.Hub
	auth     *middleware.Authenticator
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewWebSocketHandler は新しい WebSocketHandler を作成します。
//
// Parameters:
//
//	hub     : 接続を登録するハブ
//	auth    : トークンの検証に使う Authenticator
//	origins : 接続を許可する Origin。"*" を含めばすべて許可
//	logger  : ロガー
//
// Returns:
//
//	*WebSocketHandler: 新しく作成されたハンドラー
func NewWebSocketHandler(hub *realtime.Hub, auth *middleware.Authenticator, origins []string, logger *logrus.Logger) *WebSocketHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// ブラウザ以外のクライアントは Origin を送らない
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		logger: logger,
	}
}

// ServeHTTP は /ws へのリクエストを処理します。
// 最初のメッセージは {"type":"auth","token":"..."} でなければならず、
// 成功すると auth_success を返してから Hub に接続を登録します。
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.logger.WithField("remote", r.RemoteAddr)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade が HTTP エラーを書き込み済み
		log.WithError(err).Warn("Failed to upgrade to websocket")
		return
	}

	conn.SetReadDeadline(time.Now().Add(authTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		log.WithError(err).Info("Failed to read auth message")
		conn.Close()
		return
	}

	var authMsg AuthMessage
	if err := json.Unmarshal(message, &authMsg); err != nil || authMsg.Type != "auth" {
		log.Info("Expected auth message")
		h.reject(conn, "Expected auth message")
		return
	}

	id, err := h.auth.Verify(authMsg.Token)
	if err != nil {
		log.WithError(err).Info("WebSocket auth failed")
		h.reject(conn, err.Error())
		return
	}

	// タイムアウトを解除（以降は readPump が pong で管理する）
	conn.SetReadDeadline(time.Time{})
	if err := conn.WriteJSON(AuthResponse{
		Type:     "auth_success",
		Message:  "Authentication successful",
		UserID:   id.UserID,
		Username: id.Username,
	}); err != nil {
		log.WithError(err).Warn("Failed to write auth response")
		conn.Close()
		return
	}

	middleware.LogWebSocketConnect(h.logger, r.RemoteAddr, id.UserID)
	if h.hub.Attach(conn, id.UserID, id.Username) == nil {
		log.Warn("Hub is stopped, connection dropped")
	}
}

func (h *WebSocketHandler) reject(conn *websocket.Conn, message string) {
	conn.WriteJSON(map[string]string{"error": message})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
	conn.Close()
}
