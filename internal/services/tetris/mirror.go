package tetris

import (
	"errors"
	"fmt"
	"sync"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models/tetris"
)

// ErrDesync はミラーの盤面がホストのイベントと一致しなくなったことを表します。
var ErrDesync = errors.New("mirror diverged from host")

// Mirror は相手プレイヤーの盤面を、ホストから届いた TetrisEvent だけで再現します。
// 重力も衝突判定も自分では行わず、イベントの値をそのまま適用します。
type Mirror struct {
	mu    sync.RWMutex
	state GameState
}

// NewMirror は相手プレイヤー userID のミラーを作成します。
func NewMirror(userID string) *Mirror {
	return &Mirror{state: newGameState(userID)}
}

// State は現在のミラー状態のコピーを返します。
func (m *Mirror) State() GameState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// SetPaused はミラーのポーズ状態を設定します。
func (m *Mirror) SetPaused(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.IsPaused = paused
}

// MarkGameOver はミラーをゲームオーバーにします。
func (m *Mirror) MarkGameOver() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.IsGameOver = true
}

// Apply はイベントを1つ適用します。
// 検証に失敗したイベントはエラーを返し、状態は一切変更しません（そのフレームは捨てられます）。
//
// Parameters:
//
//	e : ホストから届いたイベント
//
// Returns:
//
//	error: 不正なイベントや盤面の不一致の場合
func (m *Mirror) Apply(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &m.state
	switch ev := e.(type) {
	case MoveEvent:
		st.CurrentPiece.X += ev.DeltaX

	case RotateEvent:
		next := st.CurrentPiece
		next.Rotation, next.X, next.Y = ev.NewRotation, ev.NewX, ev.NewY
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPiece, err)
		}
		st.CurrentPiece = next

	case DropEvent:
		st.CurrentPiece.Y = ev.NewY

	case LockEvent:
		return m.applyLock(ev)

	case StatusEvent:
		st.IsPaused = ev.Kind == EventPause

	case GameOverEvent:
		st.IsGameOver = true

	case HoldEvent:
		if err := ev.CurrentPiece.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPiece, err)
		}
		h := ev.HoldPiece
		st.HoldPiece = &h
		st.CurrentPiece = ev.CurrentPiece
		st.PreviewPiece = ev.PreviewPiece
		st.CanHold = false

	case GarbageEvent:
		if ev.Kind != EventReceiveGarbage {
			// send-garbage は自分のホストセッション宛てで、ミラーには関係しない
			return fmt.Errorf("%w: %s is not a mirror event", ErrUnknownEvent, ev.Kind)
		}
		st.PendingGarbage = append(st.PendingGarbage, ev.GarbageLines...)

	case InitialSpawnEvent:
		if err := ev.Piece.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPiece, err)
		}
		*st = newGameState(st.UserID)
		st.CurrentPiece = ev.Piece
		st.PreviewPiece = ev.PreviewPiece

	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, e)
	}
	return nil
}

// applyLock はロックイベントを適用します。固定・ライン消去・保留中のお邪魔ブロックの取り込みだけを
// 自分で行い、次のピース・スコア・レベルはイベントの値を使います。
func (m *Mirror) applyLock(ev LockEvent) error {
	if err := ev.LockedPiece.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPiece, err)
	}
	if err := ev.NextPiece.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPiece, err)
	}

	st := &m.state
	board := st.Board
	board.Merge(ev.LockedPiece)
	cleared := board.ClearLines()
	if cleared != ev.LinesCleared {
		return fmt.Errorf("%w: cleared %d lines, host reported %d", ErrDesync, cleared, ev.LinesCleared)
	}
	var pending []tetris.Row
	if cleared == 0 && len(st.PendingGarbage) > 0 {
		board.AddGarbage(st.PendingGarbage)
	} else {
		pending = st.PendingGarbage
	}

	st.Board = board
	st.PendingGarbage = pending
	st.CurrentPiece = ev.NextPiece
	st.PreviewPiece = ev.NextPreviewPiece
	st.LinesCleared = ev.TotalLines
	st.Score = ev.NewScore
	if ev.NewLevel != st.Level {
		st.Level = ev.NewLevel
		st.DropIntervalSeconds = DropSeconds(ev.NewLevel)
	}
	st.CanHold = true
	return nil
}
