package models

import "encoding/json"

// Envelope はソケットで送受信するすべてのメッセージの外側の形式です。
// 例: {"event": "toggle-ready", "data": {"roomId": "...", "userId": "..."}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// クライアントからサーバーへ送るソケットイベント
const (
	EventGetRooms           = "get-rooms"
	EventCreateRoom         = "create-room"
	EventJoinRoomRequest    = "join-room-request"
	EventAcceptJoinRequest  = "accept-join-room-request"
	EventDeclineJoinRequest = "decline-join-request"
	EventLeaveRoom          = "leave-room"
	EventToggleReady        = "toggle-ready"
	EventGameAction         = "game-action"
	EventGameOver           = "game-over-event"
	EventGamePause          = "game-pause-event"
	EventSendMessage        = "send-message"
)

// サーバーからクライアントへ送るソケットイベント
// join-room-request / game-over-event / game-pause-event は同じ名前で双方向に使われます。
const (
	EventRoomsList          = "rooms-list"
	EventRoomsUpdated       = "rooms-updated"
	EventRoomCreated        = "room-created"
	EventPlayerJoined       = "player-joined"
	EventRequestDeclined    = "request-declined"
	EventPlayerReadyChanged = "player-ready-changed"
	EventPlayerDisconnected = "player-disconnected"
	EventOpponentAction     = "opponent-action"
	EventMessageSent        = "message-sent"
	EventError              = "error"
)
