package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models"
)

const (
	writeWait   = 10 * time.Second
	authTimeout = 10 * time.Second
	inboxSize   = 256
)

// ErrAuthRejected はサーバーが認証を拒否したことを表します。
var ErrAuthRejected = errors.New("authentication rejected")

// Conn はリレーサーバーへの認証済みWebSocket接続です。
// 受信は専用のゴルーチンが Inbox に流し、送信は Send でいつでも行えます。
type Conn struct {
	UserID   string
	Username string

	ws      *websocket.Conn
	inbox   chan models.Envelope
	writeMu sync.Mutex
	err     error // inbox が閉じた理由。inbox が閉じた後にだけ読む
	log     *logrus.Entry
}

// Dial はサーバーに接続して認証ハンドシェイクを行います。
//
// Parameters:
//
//	ctx    : 接続のキャンセル用コンテキスト
//	url    : WebSocketのURL（例: ws://localhost:8080/ws）
//	token  : JWT。BYPASS_AUTH のサーバーには "BYPASS_AUTH"
//	logger : ロガー
//
// Returns:
//
//	*Conn : 受信ゴルーチンが動いている接続
//	error : 接続や認証に失敗した場合
func Dial(ctx context.Context, url, token string, logger *logrus.Logger) (*Conn, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("failed to send auth message: %w", err)
	}

	ws.SetReadDeadline(time.Now().Add(authTimeout))
	var resp struct {
		Type     string `json:"type"`
		UserID   string `json:"userId"`
		Username string `json:"username"`
		Error    string `json:"error"`
	}
	if err := ws.ReadJSON(&resp); err != nil {
		ws.Close()
		return nil, fmt.Errorf("failed to read auth response: %w", err)
	}
	if resp.Type != "auth_success" {
		ws.Close()
		return nil, fmt.Errorf("%w: %s", ErrAuthRejected, resp.Error)
	}
	ws.SetReadDeadline(time.Time{})

	c := &Conn{
		UserID:   resp.UserID,
		Username: resp.Username,
		ws:       ws,
		inbox:    make(chan models.Envelope, inboxSize),
		log:      logger.WithFields(logrus.Fields{"component": "Client", "user_id": resp.UserID}),
	}
	go c.readLoop()
	return c, nil
}

// Inbox はサーバーから届いたイベントです。接続が切れると閉じられます。
func (c *Conn) Inbox() <-chan models.Envelope {
	return c.inbox
}

// Err は Inbox が閉じた理由を返します。Inbox が閉じる前に呼んではいけません。
func (c *Conn) Err() error {
	return c.err
}

// Send はイベントを1つ送ります。複数のゴルーチンから呼べます。
func (c *Conn) Send(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(models.Envelope{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// Close は接続を閉じます。
func (c *Conn) Close() error {
	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Conn) readLoop() {
	defer close(c.inbox)
	for {
		var env models.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				c.log.WithError(err).Warn("Dropping malformed message")
				continue
			}
			c.err = err
			return
		}
		c.inbox <- env
	}
}
