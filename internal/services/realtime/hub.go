package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/services/room"
)

var errMissingData = errors.New("missing event data")

type inboundMessage struct {
	client *Client
	env    models.Envelope
}

// Config は Hub の設定です。
type Config struct {
	JoinRequestTimeout time.Duration
	Logger             *logrus.Logger
}

// Hub は接続中の全WebSocketクライアントと RoomManager を管理します。
// これはアプリケーション内でシングルトンとして動作することが想定されます。
//
// RoomManager へのすべての呼び出し（参加リクエストのタイムアウトを含む）は Run の
// ゴルーチンだけで行われるため、ルームの状態にロックは必要ありません。
type Hub struct {
	clients    map[string]*Client  // socketID -> Client
	rooms      *room.Manager       // Run のゴルーチンからだけ触る
	register   chan *Client        // 新しいクライアント接続の登録リクエスト用チャネル
	unregister chan *Client        // クライアント切断の登録解除リクエスト用チャネル
	inbound    chan inboundMessage // クライアントから届いたイベント
	calls      chan func()         // タイマーや HTTP ハンドラーからループ内で実行したい処理
	quit       chan struct{}       // シャットダウン用チャネル
	done       chan struct{}
	closeOnce  sync.Once
	log        *logrus.Entry
}

// NewHub は新しい Hub を作成し、そのメインイベントループをバックグラウンドで開始します。
//
// Parameters:
//
//	cfg : 参加リクエストのタイムアウトとロガー
//
// Returns:
//
//	*Hub: 初期化されたハブのポインタ
func NewHub(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundMessage, 512),
		calls:      make(chan func()),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		log:        logger.WithField("component", "Hub"),
	}
	h.rooms = room.NewManager(h, room.Options{
		JoinRequestTimeout: cfg.JoinRequestTimeout,
		Schedule:           h.schedule,
		Logger:             logger,
	})
	go h.Run()
	return h
}

// Run は Hub のメインイベントループです。
// クライアントの登録/解除、受信イベントの処理、タイマーのコールバックをすべてここで直列に処理します。
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c.ID] = c
			h.log.WithFields(logrus.Fields{"socket_id": c.ID, "user_id": c.UserID}).Info("Client registered")
			// 接続直後にルーム一覧を送る
			h.rooms.ListRooms(c.ID)

		case c := <-h.unregister:
			if registered, ok := h.clients[c.ID]; ok && registered == c {
				delete(h.clients, c.ID)
				c.SafeClose()
				h.rooms.Disconnect(c.ID)
				h.log.WithFields(logrus.Fields{"socket_id": c.ID, "user_id": c.UserID}).Info("Client unregistered")
			}

		case m := <-h.inbound:
			h.dispatch(m.client, m.env)

		case f := <-h.calls:
			f()

		case <-h.quit:
			for id, c := range h.clients {
				c.SafeClose()
				delete(h.clients, id)
			}
			h.log.Info("Hub stopped")
			return
		}
	}
}

// Attach は認証済みのWebSocket接続をハブに登録し、読み書きのゴルーチンを開始します。
//
// Parameters:
//
//	conn     : 認証が済んだWebSocketコネクション
//	userID   : 接続したユーザーのID
//	username : 表示名（空でもよい）
//
// Returns:
//
//	*Client: 登録されたクライアント。ハブが停止済みなら nil
func (h *Hub) Attach(conn *websocket.Conn, userID, username string) *Client {
	c := &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		Conn:     conn,
		Send:     make(chan []byte, sendBufferSize),
	}
	// 登録を先に済ませてから読み込みを始める（rooms-list より前にイベントを処理しないため）
	select {
	case h.register <- c:
	case <-h.quit:
		conn.Close()
		return nil
	}
	go h.writePump(c)
	go h.readPump(c)
	return c
}

// Emit は socketID のクライアントにイベントを送ります。room.Notifier の実装です。
// Run のゴルーチンからだけ呼ばれます。
func (h *Hub) Emit(socketID, event string, data any) {
	c, ok := h.clients[socketID]
	if !ok {
		h.log.WithFields(logrus.Fields{"socket_id": socketID, "event": event}).Debug("Emit to unknown socket")
		return
	}
	msg, err := encode(event, data)
	if err != nil {
		h.log.WithField("event", event).WithError(err).Error("Failed to encode event")
		return
	}
	if !c.SafeSend(msg) {
		h.log.WithFields(logrus.Fields{"socket_id": socketID, "event": event}).Warn("Failed to send (channel closed or full)")
	}
}

// Broadcast は接続中のすべてのクライアントにイベントを送ります。room.Notifier の実装です。
func (h *Hub) Broadcast(event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		h.log.WithField("event", event).WithError(err).Error("Failed to encode event")
		return
	}
	for id, c := range h.clients {
		if !c.SafeSend(msg) {
			h.log.WithFields(logrus.Fields{"socket_id": id, "event": event}).Warn("Failed to send (channel closed or full)")
		}
	}
}

// AvailableRooms は参加できるルームの一覧を返します。HTTP ハンドラーから呼ばれます。
func (h *Hub) AvailableRooms() []models.Room {
	ch := make(chan []models.Room, 1)
	if !h.post(func() { ch <- h.rooms.AvailableRooms() }) {
		return nil
	}
	return <-ch
}

// Room は roomID のルームを返します。
func (h *Hub) Room(roomID string) (models.Room, bool) {
	type result struct {
		room models.Room
		ok   bool
	}
	ch := make(chan result, 1)
	if !h.post(func() {
		r, ok := h.rooms.Room(roomID)
		ch <- result{r, ok}
	}) {
		return models.Room{}, false
	}
	res := <-ch
	return res.room, res.ok
}

// ClientCount は接続中のクライアント数を返します。
func (h *Hub) ClientCount() int {
	ch := make(chan int, 1)
	if !h.post(func() { ch <- len(h.clients) }) {
		return 0
	}
	return <-ch
}

// Shutdown はハブを停止し、すべての接続を閉じます。複数回呼んでも安全です。
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.quit)
	})
	<-h.done
}

// post は f をイベントループで実行するよう依頼します。ハブが停止していれば false を返します。
func (h *Hub) post(f func()) bool {
	select {
	case h.calls <- f:
		return true
	case <-h.quit:
		return false
	}
}

// schedule は room.Scheduler の実装です。コールバックはイベントループに戻して実行します。
func (h *Hub) schedule(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, func() { h.post(f) })
	return func() { t.Stop() }
}

// dispatch は受信したイベントを RoomManager の操作に振り分けます。
// ルーム操作のエラーは error イベントで送信者に返し、プロトコルエラーはログに残して捨てます。
func (h *Hub) dispatch(c *Client, env models.Envelope) {
	log := h.log.WithFields(logrus.Fields{"socket_id": c.ID, "user_id": c.UserID, "event": env.Event})

	var err error
	switch env.Event {
	case models.EventGetRooms:
		h.rooms.ListRooms(c.ID)
		return

	case models.EventCreateRoom:
		var req models.CreateRoomRequest
		if len(env.Data) > 0 {
			if perr := json.Unmarshal(env.Data, &req); perr != nil {
				log.WithError(perr).Warn("Dropping malformed payload")
				return
			}
		}
		h.rooms.CreateRoom(c.ID, c.UserID, h.username(c, req.Username))
		return

	case models.EventJoinRoomRequest:
		var req models.JoinRoomRequest
		if !decodeRoomPayload(log, env, &req, &req.RoomID) {
			return
		}
		err = h.rooms.RequestJoin(c.ID, req.RoomID, c.UserID, h.username(c, req.Username))

	case models.EventAcceptJoinRequest:
		var req models.JoinRoomRequest
		if !decodeRoomPayload(log, env, &req, &req.RoomID) {
			return
		}
		err = h.rooms.AcceptJoin(c.ID, req.RoomID, req.UserID, req.Username)

	case models.EventDeclineJoinRequest:
		var req models.DeclineJoinRequest
		if !decodeRoomPayload(log, env, &req, &req.RoomID) {
			return
		}
		err = h.rooms.DeclineJoin(c.ID, req.RoomID, req.UserID, req.Message)

	case models.EventLeaveRoom:
		var req models.RoomUserRequest
		if !decodeRoomPayload(log, env, &req, &req.RoomID) {
			return
		}
		err = h.rooms.LeaveRoom(c.ID, req.RoomID, c.UserID)

	case models.EventToggleReady:
		var req models.RoomUserRequest
		if !decodeRoomPayload(log, env, &req, &req.RoomID) {
			return
		}
		err = h.rooms.ToggleReady(c.ID, req.RoomID, c.UserID)

	case models.EventGameAction, models.EventGamePause, models.EventGameOver:
		var data models.GameActionData
		if !decodeRoomPayload(log, env, &data, &data.RoomID) {
			return
		}
		switch env.Event {
		case models.EventGameAction:
			err = h.rooms.RelayGameAction(c.ID, data)
		case models.EventGamePause:
			err = h.rooms.RelayPause(c.ID, data)
		default:
			err = h.rooms.RelayGameOver(c.ID, data)
		}

	case models.EventSendMessage:
		var msg models.ChatMessage
		if !decodeRoomPayload(log, env, &msg, &msg.RoomID) {
			return
		}
		err = h.rooms.SendMessage(c.ID, msg)

	default:
		log.Warn("Unknown event")
		return
	}

	if err != nil {
		log.WithError(err).Info("Room operation rejected")
		h.Emit(c.ID, models.EventError, models.ErrorData{Message: err.Error()})
	}
}

func (h *Hub) username(c *Client, requested string) string {
	if requested != "" {
		return requested
	}
	return c.Username
}

// decodeRoomPayload はペイロードをデコードし、roomId が入っているかを確認します。
func decodeRoomPayload(log *logrus.Entry, env models.Envelope, v any, roomID *string) bool {
	if len(env.Data) == 0 {
		log.WithError(errMissingData).Warn("Dropping request")
		return false
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		log.WithError(err).Warn("Dropping malformed payload")
		return false
	}
	if *roomID == "" {
		log.Warn(`Dropping request without "roomId"`)
		return false
	}
	return true
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{event, data})
}
