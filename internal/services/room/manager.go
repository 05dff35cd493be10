package room

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models"
)

// ルーム操作のエラー。メッセージはそのまま error イベントでクライアントに送られます。
var (
	ErrRoomNotFound     = errors.New("Room not found")
	ErrRoomFull         = errors.New("Room is full")
	ErrNotInRoom        = errors.New("Player is not in the room")
	ErrNoPendingRequest = errors.New("No pending join request")
	ErrAlreadyInRoom    = errors.New("Player is already in the room")
)

const (
	DefaultJoinRequestTimeout = 30 * time.Second
	DeclinedByHostMessage     = "Declined by host"
	JoinTimedOutMessage       = "Join request timed out"
)

// Notifier はソケットへの送信先です。実装はハブで、data は JSON にエンコードされて送られます。
type Notifier interface {
	// Emit は1つのソケットに送信します。
	Emit(socketID, event string, data any)
	// Broadcast は接続中のすべてのソケットに送信します。
	Broadcast(event string, data any)
}

// Scheduler は d 経過後に f を呼ぶよう予約し、予約を取り消す関数を返します。
// f は Manager の他のメソッドと同じゴルーチンで呼ばれなければなりません。
type Scheduler func(d time.Duration, f func()) (cancel func())

// Options は Manager の設定です。ゼロ値のフィールドには既定値が使われます。
type Options struct {
	JoinRequestTimeout time.Duration
	Schedule           Scheduler
	Now                func() time.Time
	NewID              func() string
	Logger             *logrus.Logger
}

type pendingKey struct {
	roomID string
	userID string
}

// pendingJoin はホストの返答待ちの参加リクエストです。
// seq はリクエストごとに増える番号で、取り消し済みのタイマーが新しいリクエストを拒否しないようにします。
type pendingJoin struct {
	socketID string
	username string
	seq      uint64
	cancel   func()
}

// Manager はすべての対戦ルームを管理する状態機械です。
//
// Manager はロックを持ちません。すべてのメソッド（タイマーのコールバックを含む）は
// 1つのゴルーチンから呼ばれる必要があり、realtime.Hub のイベントループがその役割を担います。
type Manager struct {
	rooms   map[string]*models.Room
	pending map[pendingKey]*pendingJoin
	joinSeq uint64

	notifier    Notifier
	joinTimeout time.Duration
	schedule    Scheduler
	now         func() time.Time
	newID       func() string
	log         *logrus.Entry
}

// NewManager は新しい Manager を作成します。
//
// Parameters:
//
//	notifier : イベントの送信先
//	opts     : タイムアウトや時計などの設定
//
// Returns:
//
//	*Manager: ルームが1つもない Manager
func NewManager(notifier Notifier, opts Options) *Manager {
	m := &Manager{
		rooms:       make(map[string]*models.Room),
		pending:     make(map[pendingKey]*pendingJoin),
		notifier:    notifier,
		joinTimeout: opts.JoinRequestTimeout,
		schedule:    opts.Schedule,
		now:         opts.Now,
		newID:       opts.NewID,
	}
	if m.joinTimeout <= 0 {
		m.joinTimeout = DefaultJoinRequestTimeout
	}
	if m.schedule == nil {
		m.schedule = func(d time.Duration, f func()) func() {
			t := time.AfterFunc(d, f)
			return func() { t.Stop() }
		}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = func() string { return "room_" + uuid.NewString() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m.log = logger.WithField("component", "RoomManager")
	return m
}

// Room は roomID のルームのコピーを返します。
func (m *Manager) Room(roomID string) (models.Room, bool) {
	r, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	return r.Clone(), true
}

// AvailableRooms は参加できるルーム（2人未満で対戦中でない）を作成順に返します。
func (m *Manager) AvailableRooms() []models.Room {
	rooms := make([]models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		if len(r.Players) < models.MaxPlayers && !r.GameState.IsActive {
			rooms = append(rooms, r.Clone())
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms
}

// ListRooms は get-rooms への返答として rooms-list を送ります。接続直後にも呼ばれます。
func (m *Manager) ListRooms(socketID string) {
	m.notifier.Emit(socketID, models.EventRoomsList, m.AvailableRooms())
}

// CreateRoom は socketID の接続を唯一のプレイヤー（準備未完了）とするルームを作成します。
func (m *Manager) CreateRoom(socketID, userID, username string) models.Room {
	r := &models.Room{
		ID: m.newID(),
		Players: []models.Player{{
			UserID:   userID,
			Username: username,
			SocketID: socketID,
		}},
		CreatedAt: m.now(),
	}
	m.rooms[r.ID] = r
	m.log.WithFields(logrus.Fields{"room_id": r.ID, "user_id": userID}).Info("Room created")

	snapshot := r.Clone()
	m.notifier.Emit(socketID, models.EventRoomCreated, models.RoomCreatedData{RoomID: r.ID, Room: snapshot})
	m.broadcastRooms()
	return snapshot
}

// RequestJoin は参加リクエストをルームのメンバーに知らせます。
// 承認されるまでリクエスト元はルームに入りません。JoinRequestTimeout 内に返答がなければ自動的に拒否されます。
//
// Parameters:
//
//	socketID : リクエスト元の接続
//	roomID   : 参加したいルーム
//	userID   : リクエスト元のユーザーID
//	username : 表示名
//
// Returns:
//
//	error: ルームが存在しない、満員、またはすでにメンバーの場合
func (m *Manager) RequestJoin(socketID, roomID, userID, username string) error {
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if r.PlayerIndex(userID) >= 0 {
		return ErrAlreadyInRoom
	}
	if r.IsFull() {
		return ErrRoomFull
	}

	key := pendingKey{roomID: roomID, userID: userID}
	if prev, ok := m.pending[key]; ok {
		prev.cancel()
	}
	m.joinSeq++
	seq := m.joinSeq
	m.pending[key] = &pendingJoin{
		socketID: socketID,
		username: username,
		seq:      seq,
		cancel: m.schedule(m.joinTimeout, func() {
			m.expireJoin(key, seq)
		}),
	}

	m.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("Join requested")
	m.emitToRoom(r, "", models.EventJoinRoomRequest, models.JoinRequestData{
		Room:     r.Clone(),
		UserID:   userID,
		Username: username,
	})
	return nil
}

// AcceptJoin はホストが参加リクエストを承認したときに呼ばれ、リクエスト元を2人目のプレイヤーとして追加します。
func (m *Manager) AcceptJoin(socketID, roomID, userID, username string) error {
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if !r.HasSocket(socketID) {
		return ErrNotInRoom
	}
	key := pendingKey{roomID: roomID, userID: userID}
	req, ok := m.pending[key]
	if !ok {
		return ErrNoPendingRequest
	}
	if r.IsFull() {
		return ErrRoomFull
	}
	if r.PlayerIndex(userID) >= 0 {
		return ErrAlreadyInRoom
	}
	req.cancel()
	delete(m.pending, key)

	if username == "" {
		username = req.username
	}
	r.Players = append(r.Players, models.Player{
		UserID:   userID,
		Username: username,
		SocketID: req.socketID,
	})
	m.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("Player joined")

	m.emitToRoom(r, "", models.EventPlayerJoined, models.PlayerJoinedData{
		RoomID:   roomID,
		Room:     r.Clone(),
		Username: username,
	})
	m.broadcastRooms()
	return nil
}

// DeclineJoin は参加リクエストを拒否し、リクエスト元にだけ request-declined を送ります。
// ルームの状態は変わりません。
func (m *Manager) DeclineJoin(socketID, roomID, userID, message string) error {
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if !r.HasSocket(socketID) {
		return ErrNotInRoom
	}
	if message == "" {
		message = DeclinedByHostMessage
	}
	if !m.declinePending(pendingKey{roomID: roomID, userID: userID}, message) {
		return ErrNoPendingRequest
	}
	m.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("Join request declined")
	return nil
}

// ExpireJoin は返答のないまま時間切れになった参加リクエストを拒否します。
// すでに承認・拒否されていれば何もしません。
func (m *Manager) ExpireJoin(roomID, userID string) {
	if m.declinePending(pendingKey{roomID: roomID, userID: userID}, JoinTimedOutMessage) {
		m.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("Join request timed out")
	}
}

// expireJoin はタイマーから呼ばれます。同じ利用者が送り直したリクエストには影響しません。
func (m *Manager) expireJoin(key pendingKey, seq uint64) {
	if req, ok := m.pending[key]; !ok || req.seq != seq {
		return
	}
	m.ExpireJoin(key.roomID, key.userID)
}

func (m *Manager) declinePending(key pendingKey, message string) bool {
	req, ok := m.pending[key]
	if !ok {
		return false
	}
	req.cancel()
	delete(m.pending, key)
	m.notifier.Emit(req.socketID, models.EventRequestDeclined, models.RequestDeclinedData{
		RoomID:  key.roomID,
		Message: message,
	})
	return true
}

// ToggleReady はプレイヤーの準備状態を切り替えます。2人とも準備完了になった時点でルームは対戦中になります。
func (m *Manager) ToggleReady(socketID, roomID, userID string) error {
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	idx := r.PlayerIndex(userID)
	if idx < 0 {
		return ErrNotInRoom
	}
	p := &r.Players[idx]
	p.Ready = !p.Ready

	started := false
	if !r.GameState.IsActive && r.AllReady() {
		now := m.now()
		r.GameState.IsActive = true
		r.GameState.StartedAt = &now
		r.GameState.WinnerID = ""
		started = true
		m.log.WithField("room_id", roomID).Info("Game started")
	}

	// クライアントはこのスナップショットの isActive を見て対戦を始める
	m.emitToRoom(r, "", models.EventPlayerReadyChanged, models.RoomChangedData{RoomID: roomID, Room: r.Clone()})
	if started {
		m.broadcastRooms()
	}
	return nil
}

// LeaveRoom はプレイヤーを自分の意思でルームから退出させます。切断と同じ扱いです。
func (m *Manager) LeaveRoom(socketID, roomID, userID string) error {
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	idx := r.PlayerIndex(userID)
	if idx < 0 {
		return ErrNotInRoom
	}
	m.removePlayer(r, idx)
	m.broadcastRooms()
	return nil
}

// RelayGameAction は game-action を送信者以外のメンバーに opponent-action として中継します。
// ペイロードは解釈せずにそのまま送ります。
func (m *Manager) RelayGameAction(socketID string, data models.GameActionData) error {
	r, ok := m.rooms[data.RoomID]
	if !ok {
		return ErrRoomNotFound
	}
	m.emitToRoom(r, socketID, models.EventOpponentAction, data)
	return nil
}

// RelayPause は game-pause-event を送信者を含むすべてのメンバーに中継します。
func (m *Manager) RelayPause(socketID string, data models.GameActionData) error {
	r, ok := m.rooms[data.RoomID]
	if !ok {
		return ErrRoomNotFound
	}
	m.emitToRoom(r, "", models.EventGamePause, data)
	return nil
}

// RelayGameOver は game-over-event を送信者を含むすべてのメンバーに中継します。
// 対戦中のルームに最初に届いたものだけが結果として記録され、ルームは再び準備待ちに戻ります。
// 勝敗の判定はクライアントが到着順で行うため、2つ目以降のイベントも中継されます。
func (m *Manager) RelayGameOver(socketID string, data models.GameActionData) error {
	r, ok := m.rooms[data.RoomID]
	if !ok {
		return ErrRoomNotFound
	}
	if r.GameState.IsActive {
		var action struct {
			PlayerID string `json:"playerId"`
		}
		if err := json.Unmarshal(data.Action, &action); err != nil || action.PlayerID == "" {
			// 送信者を敗者とみなす
			for _, p := range r.Players {
				if p.SocketID == socketID {
					action.PlayerID = p.UserID
				}
			}
		}
		m.finishGame(r, action.PlayerID)
	}
	m.emitToRoom(r, "", models.EventGameOver, data)
	return nil
}

// SendMessage はチャットメッセージをルームの全員に message-sent として送ります。
func (m *Manager) SendMessage(socketID string, msg models.ChatMessage) error {
	r, ok := m.rooms[msg.RoomID]
	if !ok {
		return ErrRoomNotFound
	}
	if !r.HasSocket(socketID) {
		return ErrNotInRoom
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = m.now().UnixMilli()
	}
	m.emitToRoom(r, "", models.EventMessageSent, msg)
	return nil
}

// Disconnect は切断された接続を、参加しているすべてのルームから取り除きます。
// 返答待ちの参加リクエストも破棄します。
func (m *Manager) Disconnect(socketID string) {
	for key, req := range m.pending {
		if req.socketID == socketID {
			req.cancel()
			delete(m.pending, key)
		}
	}

	changed := false
	for _, id := range m.roomIDs() {
		r := m.rooms[id]
		for i, p := range r.Players {
			if p.SocketID == socketID {
				m.removePlayer(r, i)
				changed = true
				break
			}
		}
	}
	if changed {
		m.broadcastRooms()
	}
}

// removePlayer は players[idx] を取り除きます。空になったルームは破棄し、
// そうでなければ残ったプレイヤーに player-disconnected と、退出したプレイヤーの負けとする
// game-over-event を送ります。
func (m *Manager) removePlayer(r *models.Room, idx int) {
	gone := r.Players[idx]
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	fields := logrus.Fields{"room_id": r.ID, "user_id": gone.UserID, "socket_id": gone.SocketID}

	if len(r.Players) == 0 {
		delete(m.rooms, r.ID)
		for key, req := range m.pending {
			if key.roomID == r.ID {
				req.cancel()
				delete(m.pending, key)
			}
		}
		m.log.WithFields(fields).Info("Room destroyed")
		return
	}

	m.log.WithFields(fields).Info("Player left room")
	m.emitToRoom(r, "", models.EventPlayerDisconnected, models.PlayerDisconnectedData{RoomID: r.ID, UserID: gone.UserID})

	action, err := json.Marshal(map[string]any{
		"type":      "game-over",
		"playerId":  gone.UserID,
		"timestamp": m.now().UnixMilli(),
	})
	if err != nil {
		m.log.WithFields(fields).WithError(err).Error("Failed to encode forfeit")
		return
	}
	if r.GameState.IsActive {
		m.finishGame(r, gone.UserID)
	}
	for i := range r.Players {
		r.Players[i].Ready = false
	}
	m.emitToRoom(r, "", models.EventGameOver, models.GameActionData{RoomID: r.ID, Action: action})
}

// finishGame は loserID の負けとして対戦を終了し、準備状態をリセットします。
func (m *Manager) finishGame(r *models.Room, loserID string) {
	res := &models.MatchResult{RoomID: r.ID, LoserID: loserID, EndedAt: m.now()}
	for _, p := range r.Players {
		if p.UserID != loserID {
			res.WinnerID = p.UserID
		}
	}
	r.GameState.IsActive = false
	r.GameState.WinnerID = res.WinnerID
	r.GameState.LastResult = res
	for i := range r.Players {
		r.Players[i].Ready = false
	}
	m.log.WithFields(logrus.Fields{
		"room_id": r.ID,
		"winner":  res.WinnerID,
		"loser":   res.LoserID,
	}).Info("Game finished")
}

// emitToRoom はルームのメンバー全員（exceptSocketID を除く）に送信します。
func (m *Manager) emitToRoom(r *models.Room, exceptSocketID, event string, data any) {
	for _, p := range r.Players {
		if p.SocketID == exceptSocketID {
			continue
		}
		m.notifier.Emit(p.SocketID, event, data)
	}
}

func (m *Manager) broadcastRooms() {
	m.notifier.Broadcast(models.EventRoomsUpdated, m.AvailableRooms())
}

func (m *Manager) roomIDs() []string {
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
