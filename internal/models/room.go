package models

import (
	"encoding/json"
	"time"
)

// MaxPlayers は1ルームに入れる最大人数です。
const MaxPlayers = 2

// Player はルームに参加しているプレイヤーです。
type Player struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	SocketID string `json:"socketId"`
	Ready    bool   `json:"ready"`
}

// RoomGameState はルームの対戦状態です。
type RoomGameState struct {
	IsActive   bool         `json:"isActive"`
	StartedAt  *time.Time   `json:"startedAt,omitempty"`
	WinnerID   string       `json:"winnerId,omitempty"`
	LastResult *MatchResult `json:"lastResult,omitempty"`
}

// Room は対戦ルームです。rooms-list / rooms-updated などでそのままクライアントに送られます。
type Room struct {
	ID        string        `json:"id"`
	Players   []Player      `json:"players"`
	GameState RoomGameState `json:"gameState"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Clone はルームのディープコピーを返します。送信用のスナップショットに使います。
func (r *Room) Clone() Room {
	c := *r
	c.Players = append([]Player(nil), r.Players...)
	if r.GameState.StartedAt != nil {
		t := *r.GameState.StartedAt
		c.GameState.StartedAt = &t
	}
	if r.GameState.LastResult != nil {
		res := *r.GameState.LastResult
		c.GameState.LastResult = &res
	}
	return c
}

// IsFull はルームが満員かどうかを返します。
func (r *Room) IsFull() bool {
	return len(r.Players) >= MaxPlayers
}

// PlayerIndex は userID のプレイヤーの位置を返します。見つからなければ -1 です。
func (r *Room) PlayerIndex(userID string) int {
	for i, p := range r.Players {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// HasSocket は socketID の接続がこのルームのプレイヤーかどうかを返します。
func (r *Room) HasSocket(socketID string) bool {
	for _, p := range r.Players {
		if p.SocketID == socketID {
			return true
		}
	}
	return false
}

// AllReady は2人そろって両方とも準備完了かどうかを返します。
func (r *Room) AllReady() bool {
	if len(r.Players) != MaxPlayers {
		return false
	}
	for _, p := range r.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// クライアントから届くリクエストのペイロード

// CreateRoomRequest は create-room のペイロードです。
type CreateRoomRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// JoinRoomRequest は join-room-request と accept-join-room-request のペイロードです。
type JoinRoomRequest struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// DeclineJoinRequest は decline-join-request のペイロードです。
type DeclineJoinRequest struct {
	RoomID  string `json:"roomId"`
	UserID  string `json:"userId"`
	Message string `json:"message,omitempty"`
}

// RoomUserRequest は leave-room と toggle-ready のペイロードです。
type RoomUserRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// GameActionData は game-action / game-over-event / game-pause-event のペイロードです。
// Action はサーバーでは解釈せず、そのまま中継します。
type GameActionData struct {
	RoomID string          `json:"roomId"`
	Action json.RawMessage `json:"action"`
}

// ChatMessage は send-message / message-sent のペイロードです。
type ChatMessage struct {
	RoomID    string `json:"roomId"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

// サーバーから送るイベントのペイロード

// RoomCreatedData は room-created のペイロードです。
type RoomCreatedData struct {
	RoomID string `json:"roomId"`
	Room   Room   `json:"room"`
}

// PlayerJoinedData は player-joined のペイロードです。
type PlayerJoinedData struct {
	RoomID   string `json:"roomId"`
	Room     Room   `json:"room"`
	Username string `json:"username"`
}

// JoinRequestData はホストに届く join-room-request のペイロードです。
type JoinRequestData struct {
	Room     Room   `json:"room"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RequestDeclinedData は request-declined のペイロードです。
type RequestDeclinedData struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message,omitempty"`
}

// RoomChangedData は player-ready-changed のペイロードです。
type RoomChangedData struct {
	RoomID string `json:"roomId"`
	Room   Room   `json:"room"`
}

// PlayerDisconnectedData は player-disconnected のペイロードです。
type PlayerDisconnectedData struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// ErrorData は error のペイロードです。
type ErrorData struct {
	Message string `json:"message"`
}
