package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models"
)

const (
	writeWait      = 10 * time.Second    // 1メッセージの書き込みに許す時間
	pongWait       = 60 * time.Second    // pong を待つ時間。これを過ぎると切断扱い
	pingPeriod     = (pongWait * 9) / 10 // ping の送信間隔。pongWait より短くする
	maxMessageSize = 16 * 1024           // お邪魔ブロック4行を含むイベントでも収まる大きさ
	sendBufferSize = 256
)

// Client はWebSocket接続を持つ単一のクライアントを表します。
type Client struct {
	ID       string          // ソケットID。接続ごとに一意
	UserID   string          // 認証済みのユーザーID
	Username string          // 表示名（トークンに含まれていれば）
	Conn     *websocket.Conn // クライアントとの実際のWebSocketコネクション
	Send     chan []byte     // クライアントへメッセージを送信するためのバッファ付きチャネル
	closed   bool            // チャネルが閉じられたかどうかのフラグ
	mu       sync.Mutex      // closedフラグ保護用
}

// SafeSend は安全にチャネルにメッセージを送信します（closedチェック付き）
func (c *Client) SafeSend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false // 既に閉じられている
	}

	select {
	case c.Send <- message:
		return true
	default:
		return false // チャネルがフル
	}
}

// SafeClose は安全にチャネルを閉じます
func (c *Client) SafeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.Send)
		c.closed = true
	}
}

// readPump はクライアントからのWebSocketメッセージを読み込み、ハブのイベントループに渡します。
// 接続が切れるとハブに登録解除を通知します。
func (h *Hub) readPump(c *Client) {
	log := h.log.WithFields(logrus.Fields{"socket_id": c.ID, "user_id": c.UserID})
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic in readPump: %v", r)
		}
		select {
		case h.unregister <- c:
		case <-h.quit:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("WebSocket unexpected close")
			} else {
				log.WithError(err).Debug("WebSocket closed")
			}
			return
		}
		if len(message) == 0 {
			continue
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			// 形式の壊れたメッセージは通知せずに捨てる
			log.WithField("message", string(message)).Warn("Dropping malformed message")
			continue
		}

		// 順序を保つためにブロックして渡す（イベントを落とすとミラーがずれる）
		select {
		case h.inbound <- inboundMessage{client: c, env: env}:
		case <-h.quit:
			return
		}
	}
}

// writePump は Client の Send チャネルからのメッセージをWebSocketコネクションに書き込みます。
// クライアントごとにこのゴルーチンが動作します。
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// ハブがチャネルを閉じた
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.WithField("socket_id", c.ID).WithError(err).Warn("Error writing message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
