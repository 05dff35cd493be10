package tetris

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models/tetris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var randomKeys = []string{
	KeyLeft, KeyLeft, KeyRight, KeyRight, KeySoftDrop, KeySoftDrop,
	KeyRotateCW, KeyRotateCCW, KeyHoldLeft, KeyHardDrop,
}

// relay はイベントを JSON に通してから受信側に渡します。
func relay(t *testing.T, e Event) Event {
	t.Helper()
	data, err := EncodeEvent(e)
	require.NoError(t, err)
	got, err := DecodeEvent(data)
	require.NoError(t, err)
	return got
}

func assertMirrored(t *testing.T, host, mirror GameState, step int) {
	t.Helper()
	require.Equal(t, host.Board, mirror.Board, "board at step %d", step)
	require.Equal(t, host.CurrentPiece, mirror.CurrentPiece, "piece at step %d", step)
	require.Equal(t, host.PreviewPiece, mirror.PreviewPiece, "preview at step %d", step)
	require.Equal(t, host.HoldPiece, mirror.HoldPiece, "hold at step %d", step)
	require.Equal(t, host.CanHold, mirror.CanHold, "canHold at step %d", step)
	require.Equal(t, host.Score, mirror.Score, "score at step %d", step)
	require.Equal(t, host.Level, mirror.Level, "level at step %d", step)
	require.Equal(t, host.LinesCleared, mirror.LinesCleared, "lines at step %d", step)
	require.Equal(t, host.IsGameOver, mirror.IsGameOver, "game over at step %d", step)
}

// TestMirror_ReplaysHost はランダムな入力とお邪魔ブロックを受けたホストのイベント列をミラーに流し、
// 毎ステップ盤面が一致することをテストします。
func TestMirror_ReplaysHost(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		host := NewGameSession("host", seed)
		mirror := NewMirror("host")
		rng := rand.New(rand.NewSource(seed * 31))
		garbageRng := rand.New(rand.NewSource(seed * 17))

		apply := func(evs []Event) {
			for _, e := range evs {
				if g, ok := e.(GarbageEvent); ok && g.Kind == EventSendGarbage {
					continue
				}
				if l, ok := e.(LockEvent); ok {
					l.GarbageToSend = nil
					e = l
				}
				require.NoError(t, mirror.Apply(relay(t, e)))
			}
		}

		apply(host.Start())
		for step := 0; step < 3000 && host.Running(); step++ {
			if step%97 == 0 {
				host.QueueGarbage(tetris.NewGarbageRows(garbageRng, 1+garbageRng.Intn(2)))
			}
			apply(host.HandleInput(randomKeys[rng.Intn(len(randomKeys))]))
			apply(host.Tick(TimeStep))
			assertMirrored(t, host.State(), mirror.State(), step)
		}
	}
}

func TestMirror_RejectsInvalidPiece(t *testing.T) {
	m := NewMirror("p")
	require.NoError(t, m.Apply(InitialSpawnEvent{Piece: spawnPiece(tetris.TypeT), PreviewPiece: tetris.TypeI}))
	before := m.State()

	err := m.Apply(RotateEvent{Direction: 1, NewRotation: 5, NewX: 3, NewY: 18})
	assert.True(t, errors.Is(err, ErrInvalidPiece))

	err = m.Apply(LockEvent{Kind: EventHardDropLock, LockedPiece: tetris.Piece{Type: tetris.PieceType(42)}})
	assert.True(t, errors.Is(err, ErrInvalidPiece))
	assert.Equal(t, before, m.State())
}

// TestMirror_Desync は報告された消去行数が盤面と合わないロックを拒否することをテストします。
func TestMirror_Desync(t *testing.T) {
	m := NewMirror("p")
	require.NoError(t, m.Apply(InitialSpawnEvent{Piece: spawnPiece(tetris.TypeO), PreviewPiece: tetris.TypeI}))
	before := m.State()

	err := m.Apply(LockEvent{
		Kind:         EventHardDropLock,
		LockedPiece:  tetris.Piece{Type: tetris.TypeO, X: 3, Y: 38},
		NextPiece:    spawnPiece(tetris.TypeI),
		LinesCleared: 1,
	})
	assert.True(t, errors.Is(err, ErrDesync))
	assert.Equal(t, before, m.State())
}

func TestMirror_RejectsSendGarbage(t *testing.T) {
	m := NewMirror("p")
	err := m.Apply(GarbageEvent{Kind: EventSendGarbage})
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestMirror_PauseAndGameOver(t *testing.T) {
	m := NewMirror("p")
	require.NoError(t, m.Apply(StatusEvent{Kind: EventPause}))
	assert.True(t, m.State().IsPaused)
	require.NoError(t, m.Apply(StatusEvent{Kind: EventResume}))
	assert.False(t, m.State().IsPaused)
	require.NoError(t, m.Apply(GameOverEvent{PlayerID: "p"}))
	assert.True(t, m.State().IsGameOver)
}

func TestMirror_SetPausedAndMarkGameOver(t *testing.T) {
	m := NewMirror("opponent")

	m.SetPaused(true)
	assert.True(t, m.State().IsPaused)
	m.SetPaused(false)
	assert.False(t, m.State().IsPaused)

	m.MarkGameOver()
	st := m.State()
	assert.True(t, st.IsGameOver)
	assert.Equal(t, "opponent", st.UserID)
}
