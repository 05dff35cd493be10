package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models"
)

// RoomLister はルームの読み取り専用ビューです。realtime.Hub が実装します。
type RoomLister interface {
	AvailableRooms() []models.Room
	Room(roomID string) (models.Room, bool)
	ClientCount() int
}

// RoomsHandler はルーム一覧とヘルスチェックのHTTPリクエストを処理します。
type RoomsHandler struct {
	rooms RoomLister
}

// NewRoomsHandler は新しい RoomsHandler を作成します。
func NewRoomsHandler(rooms RoomLister) *RoomsHandler {
	return &RoomsHandler{rooms: rooms}
}

// ListRooms は参加可能なルームの一覧を返します。
// GET /api/rooms
func (h *RoomsHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.rooms.AvailableRooms()
	if rooms == nil {
		rooms = []models.Room{}
	}
	WriteJSONResponse(w, http.StatusOK, rooms)
}

// GetRoom は特定のルームの現在の状態を返します。（デバッグ用）
// GET /api/rooms/{roomID}
func (h *RoomsHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	if roomID == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "roomID is required")
		return
	}

	room, ok := h.rooms.Room(roomID)
	if !ok {
		WriteErrorResponse(w, http.StatusNotFound, "Room not found")
		return
	}
	WriteJSONResponse(w, http.StatusOK, room)
}

// Health はサーバーの稼働状況と接続数を返します。
// GET /api/health
func (h *RoomsHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": h.rooms.ClientCount(),
	})
}
