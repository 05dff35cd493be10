package room

import (
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models"
)

type sent struct {
	to    string // 空なら Broadcast
	event string
	data  any
}

// recorder は送信されたイベントを記録する Notifier です。
type recorder struct {
	msgs []sent
}

func (r *recorder) Emit(socketID, event string, data any) {
	r.msgs = append(r.msgs, sent{to: socketID, event: event, data: data})
}

func (r *recorder) Broadcast(event string, data any) {
	r.msgs = append(r.msgs, sent{event: event, data: data})
}

func (r *recorder) to(socketID string) []sent {
	var out []sent
	for _, m := range r.msgs {
		if m.to == socketID {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) events(socketID string) []string {
	var out []string
	for _, m := range r.to(socketID) {
		out = append(out, m.event)
	}
	return out
}

func (r *recorder) reset() { r.msgs = nil }

// manualScheduler は Fire が呼ばれるまでコールバックを実行しないスケジューラーです。
type manualScheduler struct {
	tasks []*task
}

type task struct {
	d        time.Duration
	f        func()
	canceled bool
}

func (s *manualScheduler) schedule(d time.Duration, f func()) func() {
	t := &task{d: d, f: f}
	s.tasks = append(s.tasks, t)
	return func() { t.canceled = true }
}

func (s *manualScheduler) fireAll() {
	for _, t := range s.tasks {
		if !t.canceled {
			t.canceled = true
			t.f()
		}
	}
}

func (s *manualScheduler) active() int {
	n := 0
	for _, t := range s.tasks {
		if !t.canceled {
			n++
		}
	}
	return n
}

type fixture struct {
	m     *Manager
	rec   *recorder
	sched *manualScheduler
}

func newFixture() *fixture {
	rec := &recorder{}
	sched := &manualScheduler{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	seq := 0
	m := NewManager(rec, Options{
		JoinRequestTimeout: 5 * time.Second,
		Schedule:           sched.schedule,
		Now:                func() time.Time { return time.UnixMilli(5000) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("room_%d", seq)
		},
		Logger: logger,
	})
	return &fixture{m: m, rec: rec, sched: sched}
}

// withTwoPlayers は host と guest が参加したルームを作ります。
func (f *fixture) withTwoPlayers(t *testing.T) string {
	t.Helper()
	room := f.m.CreateRoom("s-host", "host", "Host")
	require.NoError(t, f.m.RequestJoin("s-guest", room.ID, "guest", "Guest"))
	require.NoError(t, f.m.AcceptJoin("s-host", room.ID, "guest", ""))
	f.rec.reset()
	return room.ID
}

func TestCreateRoom(t *testing.T) {
	f := newFixture()
	room := f.m.CreateRoom("s1", "u1", "Alice")

	assert.Equal(t, "room_1", room.ID)
	require.Len(t, room.Players, 1)
	assert.Equal(t, models.Player{UserID: "u1", Username: "Alice", SocketID: "s1"}, room.Players[0])
	assert.False(t, room.GameState.IsActive)

	require.Len(t, f.rec.msgs, 2)
	assert.Equal(t, sent{to: "s1", event: models.EventRoomCreated, data: models.RoomCreatedData{RoomID: "room_1", Room: room}}, f.rec.msgs[0])
	assert.Equal(t, models.EventRoomsUpdated, f.rec.msgs[1].event)
	assert.Equal(t, []models.Room{room}, f.rec.msgs[1].data)
}

// TestJoinFlow_Accept は参加リクエストが承認されるまでリクエスト元がルームに入らないことをテストします。
func TestJoinFlow_Accept(t *testing.T) {
	f := newFixture()
	room := f.m.CreateRoom("s-host", "host", "Host")
	f.rec.reset()

	require.NoError(t, f.m.RequestJoin("s-guest", room.ID, "guest", "Guest"))
	assert.Equal(t, []string{models.EventJoinRoomRequest}, f.rec.events("s-host"))
	assert.Empty(t, f.rec.events("s-guest"), "requester is not a member yet")
	req := f.rec.to("s-host")[0].data.(models.JoinRequestData)
	assert.Equal(t, "guest", req.UserID)
	assert.Equal(t, "Guest", req.Username)

	current, _ := f.m.Room(room.ID)
	assert.Len(t, current.Players, 1)
	assert.Equal(t, 1, f.sched.active())

	f.rec.reset()
	require.NoError(t, f.m.AcceptJoin("s-host", room.ID, "guest", ""))
	assert.Equal(t, 0, f.sched.active(), "timer is canceled")

	current, _ = f.m.Room(room.ID)
	require.Len(t, current.Players, 2)
	assert.Equal(t, models.Player{UserID: "guest", Username: "Guest", SocketID: "s-guest"}, current.Players[1])

	assert.Equal(t, []string{models.EventPlayerJoined}, f.rec.events("s-host"))
	assert.Equal(t, []string{models.EventPlayerJoined}, f.rec.events("s-guest"))
	joined := f.rec.to("s-guest")[0].data.(models.PlayerJoinedData)
	assert.Equal(t, "Guest", joined.Username)
	assert.Empty(t, f.m.AvailableRooms(), "full rooms are not listed")

	assert.ErrorIs(t, f.m.RequestJoin("s-third", room.ID, "third", "Third"), ErrRoomFull)
}

// TestJoinFlow_Decline は拒否されたリクエスト元にだけ request-declined が届き、
// ルームが1人のままであることをテストします。
func TestJoinFlow_Decline(t *testing.T) {
	f := newFixture()
	room := f.m.CreateRoom("s-host", "host", "Host")
	require.NoError(t, f.m.RequestJoin("s-guest", room.ID, "guest", "Guest"))
	f.rec.reset()

	require.NoError(t, f.m.DeclineJoin("s-host", room.ID, "guest", ""))

	assert.Empty(t, f.rec.events("s-host"))
	require.Equal(t, []string{models.EventRequestDeclined}, f.rec.events("s-guest"))
	assert.Equal(t, models.RequestDeclinedData{RoomID: room.ID, Message: DeclinedByHostMessage}, f.rec.to("s-guest")[0].data)

	current, _ := f.m.Room(room.ID)
	assert.Len(t, current.Players, 1)
	assert.Equal(t, 0, f.sched.active())

	assert.ErrorIs(t, f.m.DeclineJoin("s-host", room.ID, "guest", ""), ErrNoPendingRequest)
	assert.ErrorIs(t, f.m.AcceptJoin("s-host", room.ID, "guest", ""), ErrNoPendingRequest)
}

func TestJoinFlow_DeclineWithMessage(t *testing.T) {
	f := newFixture()
	room := f.m.CreateRoom("s-host", "host", "Host")
	require.NoError(t, f.m.RequestJoin("s-guest", room.ID, "guest", "Guest"))
	f.rec.reset()

	require.NoError(t, f.m.DeclineJoin("s-host", room.ID, "guest", "sorry"))
	assert.Equal(t, "sorry", f.rec.to("s-guest")[0].data.(models.RequestDeclinedData).Message)
}

func TestJoinFlow_Timeout(t *testing.T) {
	f := newFixture()
	room := f.m.CreateRoom("s-host", "host", "Host")
	require.NoError(t, f.m.RequestJoin("s-guest", room.ID, "guest", "Guest"))
	require.Len(t, f.sched.tasks, 1)
	assert.Equal(t, 5*time.Second, f.sched.tasks[0].d)
	f.rec.reset()

	f.sched.fireAll()

	require.Equal(t, []string{models.EventRequestDeclined}, f.rec.events("s-guest"))
	assert.Equal(t, JoinTimedOutMessage, f.rec.to("s-guest")[0].data.(models.RequestDeclinedData).Message)
	assert.ErrorIs(t, f.m.AcceptJoin("s-host", room.ID, "guest", ""), ErrNoPendingRequest)

	// 既に処理済みなら何もしない
	f.rec.reset()
	f.m.ExpireJoin(room.ID, "guest")
	assert.Empty(t, f.rec.msgs)
}

// TestJoinFlow_StaleTimer は送り直したリクエストが、古いタイマーのコールバックで拒否されないことをテストします。
func TestJoinFlow_StaleTimer(t *testing.T) {
	f := newFixture()
	room := f.m.CreateRoom("s-host", "host", "Host")
	require.NoError(t, f.m.RequestJoin("s-guest", room.ID, "guest", "Guest"))
	require.NoError(t, f.m.RequestJoin("s-guest", room.ID, "guest", "Guest"))
	require.Len(t, f.sched.tasks, 2)
	assert.True(t, f.sched.tasks[0].canceled)
	f.rec.reset()

	// 取り消し前にすでに発火していたコールバックが後から実行される
	f.sched.tasks[0].f()
	assert.Empty(t, f.rec.events("s-guest"))
	require.NoError(t, f.m.AcceptJoin("s-host", room.ID, "guest", ""))

	current, _ := f.m.Room(room.ID)
	assert.Len(t, current.Players, 2)
}

func TestJoinFlow_RejectsExistingMember(t *testing.T) {
	f := newFixture()
	room := f.m.CreateRoom("s-host", "host", "Host")

	assert.ErrorIs(t, f.m.RequestJoin("s-host2", room.ID, "host", "Host"), ErrAlreadyInRoom)
	assert.Equal(t, 0, f.sched.active(), "no pending request is kept")
	assert.ErrorIs(t, f.m.AcceptJoin("s-host", room.ID, "host", ""), ErrNoPendingRequest)

	current, _ := f.m.Room(room.ID)
	assert.Len(t, current.Players, 1)
}

func TestJoinFlow_OnlyMembersAnswer(t *testing.T) {
	f := newFixture()
	room := f.m.CreateRoom("s-host", "host", "Host")
	require.NoError(t, f.m.RequestJoin("s-guest", room.ID, "guest", "Guest"))

	assert.ErrorIs(t, f.m.AcceptJoin("s-guest", room.ID, "guest", ""), ErrNotInRoom)
	assert.ErrorIs(t, f.m.DeclineJoin("s-other", room.ID, "guest", ""), ErrNotInRoom)
}

func TestRoomNotFound(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.m.RequestJoin("s", "nope", "u", "U"), ErrRoomNotFound)
	assert.ErrorIs(t, f.m.AcceptJoin("s", "nope", "u", "U"), ErrRoomNotFound)
	assert.ErrorIs(t, f.m.DeclineJoin("s", "nope", "u", ""), ErrRoomNotFound)
	assert.ErrorIs(t, f.m.ToggleReady("s", "nope", "u"), ErrRoomNotFound)
	assert.ErrorIs(t, f.m.LeaveRoom("s", "nope", "u"), ErrRoomNotFound)
	assert.ErrorIs(t, f.m.RelayGameAction("s", models.GameActionData{RoomID: "nope"}), ErrRoomNotFound)
	assert.ErrorIs(t, f.m.RelayPause("s", models.GameActionData{RoomID: "nope"}), ErrRoomNotFound)
	assert.ErrorIs(t, f.m.RelayGameOver("s", models.GameActionData{RoomID: "nope"}), ErrRoomNotFound)
	assert.ErrorIs(t, f.m.SendMessage("s", models.ChatMessage{RoomID: "nope"}), ErrRoomNotFound)
	assert.Equal(t, "Room not found", ErrRoomNotFound.Error())
}

// TestToggleReady は2人とも準備完了になった時点でルームが対戦中になることをテストします。
func TestToggleReady(t *testing.T) {
	f := newFixture()
	roomID := f.withTwoPlayers(t)

	require.NoError(t, f.m.ToggleReady("s-host", roomID, "host"))
	current, _ := f.m.Room(roomID)
	assert.True(t, current.Players[0].Ready)
	assert.False(t, current.GameState.IsActive)
	assert.Equal(t, []string{models.EventPlayerReadyChanged}, f.rec.events("s-guest"))

	require.NoError(t, f.m.ToggleReady("s-host", roomID, "host"))
	require.NoError(t, f.m.ToggleReady("s-host", roomID, "host"))
	require.NoError(t, f.m.ToggleReady("s-guest", roomID, "guest"))

	current, _ = f.m.Room(roomID)
	assert.True(t, current.GameState.IsActive)
	require.NotNil(t, current.GameState.StartedAt)
	assert.Equal(t, time.UnixMilli(5000), *current.GameState.StartedAt)

	assert.ErrorIs(t, f.m.ToggleReady("s-x", roomID, "stranger"), ErrNotInRoom)
}

// TestToggleReady_AnnouncesStart は2人目の準備完了で送られる player-ready-changed が
// すでに対戦中のルームを運ぶことをテストします。クライアントはこれを見て対戦を始めます。
func TestToggleReady_AnnouncesStart(t *testing.T) {
	f := newFixture()
	roomID := f.withTwoPlayers(t)

	require.NoError(t, f.m.ToggleReady("s-host", roomID, "host"))
	first := f.rec.to("s-guest")[0].data.(models.RoomChangedData)
	assert.False(t, first.Room.GameState.IsActive)
	f.rec.reset()

	require.NoError(t, f.m.ToggleReady("s-guest", roomID, "guest"))
	for _, socketID := range []string{"s-host", "s-guest"} {
		msgs := f.rec.to(socketID)
		require.Len(t, msgs, 1)
		require.Equal(t, models.EventPlayerReadyChanged, msgs[0].event)
		changed := msgs[0].data.(models.RoomChangedData)
		assert.True(t, changed.Room.AllReady())
		assert.True(t, changed.Room.GameState.IsActive, "snapshot for %s", socketID)
		require.NotNil(t, changed.Room.GameState.StartedAt)
	}
	assert.Equal(t, models.EventRoomsUpdated, f.rec.msgs[len(f.rec.msgs)-1].event)
}

func TestRelayGameAction(t *testing.T) {
	f := newFixture()
	roomID := f.withTwoPlayers(t)
	data := models.GameActionData{RoomID: roomID, Action: json.RawMessage(`{"type":"piece-player-move","deltaX":1}`)}

	require.NoError(t, f.m.RelayGameAction("s-host", data))
	assert.Empty(t, f.rec.events("s-host"), "not echoed to the sender")
	require.Equal(t, []string{models.EventOpponentAction}, f.rec.events("s-guest"))
	assert.Equal(t, data, f.rec.to("s-guest")[0].data)
}

func TestRelayPause(t *testing.T) {
	f := newFixture()
	roomID := f.withTwoPlayers(t)
	data := models.GameActionData{RoomID: roomID, Action: json.RawMessage(`{"type":"game-pause"}`)}

	require.NoError(t, f.m.RelayPause("s-guest", data))
	assert.Equal(t, []string{models.EventGamePause}, f.rec.events("s-host"))
	assert.Equal(t, []string{models.EventGamePause}, f.rec.events("s-guest"))
}

// TestRelayGameOver は最初の game-over-event で対戦が終わり、その後のイベントも中継されることをテストします。
func TestRelayGameOver(t *testing.T) {
	f := newFixture()
	roomID := f.withTwoPlayers(t)
	require.NoError(t, f.m.ToggleReady("s-host", roomID, "host"))
	require.NoError(t, f.m.ToggleReady("s-guest", roomID, "guest"))
	f.rec.reset()

	first := models.GameActionData{RoomID: roomID, Action: json.RawMessage(`{"type":"game-over","playerId":"guest"}`)}
	require.NoError(t, f.m.RelayGameOver("s-guest", first))
	assert.Equal(t, []string{models.EventGameOver}, f.rec.events("s-host"))
	assert.Equal(t, []string{models.EventGameOver}, f.rec.events("s-guest"))

	current, _ := f.m.Room(roomID)
	assert.False(t, current.GameState.IsActive)
	assert.Equal(t, "host", current.GameState.WinnerID)
	require.NotNil(t, current.GameState.LastResult)
	assert.Equal(t, "guest", current.GameState.LastResult.LoserID)
	for _, p := range current.Players {
		assert.False(t, p.Ready)
	}

	f.rec.reset()
	second := models.GameActionData{RoomID: roomID, Action: json.RawMessage(`{"type":"game-over","playerId":"host"}`)}
	require.NoError(t, f.m.RelayGameOver("s-host", second))
	assert.Equal(t, []string{models.EventGameOver}, f.rec.events("s-guest"))
	current, _ = f.m.Room(roomID)
	assert.Equal(t, "host", current.GameState.WinnerID, "result is not overwritten")
}

func TestSendMessage(t *testing.T) {
	f := newFixture()
	roomID := f.withTwoPlayers(t)

	require.NoError(t, f.m.SendMessage("s-host", models.ChatMessage{RoomID: roomID, Message: "gl", Username: "Host"}))
	require.Equal(t, []string{models.EventMessageSent}, f.rec.events("s-guest"))
	msg := f.rec.to("s-guest")[0].data.(models.ChatMessage)
	assert.Equal(t, "gl", msg.Message)
	assert.Equal(t, int64(5000), msg.Timestamp)
	assert.Equal(t, []string{models.EventMessageSent}, f.rec.events("s-host"))

	assert.ErrorIs(t, f.m.SendMessage("s-x", models.ChatMessage{RoomID: roomID}), ErrNotInRoom)
}

// TestDisconnect は切断したプレイヤーの負けとする game-over-event が残ったプレイヤーに届くことをテストします。
func TestDisconnect(t *testing.T) {
	f := newFixture()
	roomID := f.withTwoPlayers(t)
	require.NoError(t, f.m.ToggleReady("s-host", roomID, "host"))
	require.NoError(t, f.m.ToggleReady("s-guest", roomID, "guest"))
	f.rec.reset()

	f.m.Disconnect("s-guest")

	events := f.rec.to("s-host")
	require.Len(t, events, 2)
	assert.Equal(t, models.EventPlayerDisconnected, events[0].event)
	assert.Equal(t, models.PlayerDisconnectedData{RoomID: roomID, UserID: "guest"}, events[0].data)

	assert.Equal(t, models.EventGameOver, events[1].event)
	over := events[1].data.(models.GameActionData)
	assert.JSONEq(t, `{"type":"game-over","playerId":"guest","timestamp":5000}`, string(over.Action))

	current, ok := f.m.Room(roomID)
	require.True(t, ok)
	assert.Len(t, current.Players, 1)
	assert.False(t, current.GameState.IsActive)
	assert.Equal(t, "host", current.GameState.WinnerID)
	assert.Len(t, f.m.AvailableRooms(), 1)

	// 最後の1人が抜けるとルームは破棄される
	f.m.Disconnect("s-host")
	_, ok = f.m.Room(roomID)
	assert.False(t, ok)
	assert.Empty(t, f.m.AvailableRooms())
}

func TestDisconnect_DropsPendingRequest(t *testing.T) {
	f := newFixture()
	room := f.m.CreateRoom("s-host", "host", "Host")
	require.NoError(t, f.m.RequestJoin("s-guest", room.ID, "guest", "Guest"))

	f.m.Disconnect("s-guest")
	assert.Equal(t, 0, f.sched.active())
	assert.ErrorIs(t, f.m.AcceptJoin("s-host", room.ID, "guest", ""), ErrNoPendingRequest)

	// ホストの切断でルームごと消える
	require.NoError(t, f.m.RequestJoin("s-guest", room.ID, "guest", "Guest"))
	f.m.Disconnect("s-host")
	assert.Equal(t, 0, f.sched.active())
	_, ok := f.m.Room(room.ID)
	assert.False(t, ok)
}

func TestLeaveRoom(t *testing.T) {
	f := newFixture()
	roomID := f.withTwoPlayers(t)

	require.NoError(t, f.m.LeaveRoom("s-host", roomID, "host"))
	assert.Equal(t, []string{models.EventPlayerDisconnected, models.EventGameOver}, f.rec.events("s-guest"))
	current, _ := f.m.Room(roomID)
	require.Len(t, current.Players, 1)
	assert.Equal(t, "guest", current.Players[0].UserID)

	assert.ErrorIs(t, f.m.LeaveRoom("s-host", roomID, "host"), ErrNotInRoom)
}

func TestAvailableRooms(t *testing.T) {
	f := newFixture()
	a := f.m.CreateRoom("s1", "u1", "")
	b := f.m.CreateRoom("s2", "u2", "")
	full := f.withTwoPlayers(t)

	rooms := f.m.AvailableRooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, a.ID, rooms[0].ID)
	assert.Equal(t, b.ID, rooms[1].ID)
	for _, r := range rooms {
		assert.NotEqual(t, full, r.ID)
	}

	f.rec.reset()
	f.m.ListRooms("s9")
	require.Len(t, f.rec.msgs, 1)
	assert.Equal(t, sent{to: "s9", event: models.EventRoomsList, data: rooms}, f.rec.msgs[0])
}
