package tetris

import (
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models/tetris"
)

// 入力デバイスに関係なく、キーボード・ゲームパッド・スワイプはすべてこの論理キーコードに正規化されます。
const (
	KeyLeft      = "ArrowLeft"
	KeyRight     = "ArrowRight"
	KeySoftDrop  = "ArrowDown"
	KeyHardDrop  = "ArrowUp"
	KeyRotateCW  = "Space"
	KeyRotateCCW = "KeyZ"
	KeyHoldLeft  = "ShiftLeft"
	KeyHoldRight = "ShiftRight"
	KeyPause     = "Escape"
)

const (
	// TimeStep は固定タイムステップ（秒）です。
	TimeStep = 1.0 / FramesPerSecond
	// maxFrameDelta は1回の Tick で進める最大時間です。タブ復帰時などの大きな dt で処理が詰まらないようにします。
	maxFrameDelta = 0.25
	// 浮動小数点の積み上げ誤差で1フレーム遅れないための許容値
	epsilon = 1e-9
)

// HandleInput は論理キーコードを1つ処理し、発生したイベントを返します。
// 衝突して動けなかった操作はイベントを返しません。
//
// Parameters:
//
//	code : 論理キーコード（例: "ArrowLeft", "Space"）
//
// Returns:
//
//	[]Event: 状態が変化した場合のイベント。何も起きなければ nil
func (s *GameSession) HandleInput(code string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.state.IsGameOver {
		return nil
	}

	if code == KeyPause {
		return []Event{s.togglePause()}
	}
	// ポーズ中は操作を受け付けない
	if s.state.IsPaused {
		return nil
	}

	piece := &s.state.CurrentPiece
	board := &s.state.Board

	switch code {
	case KeyLeft, KeyRight:
		dx := -1
		if code == KeyRight {
			dx = 1
		}
		if !board.CanMove(*piece, dx, 0, piece.Rotation) {
			return nil
		}
		piece.X += dx
		return []Event{MoveEvent{Stamp: s.stamp(), DeltaX: dx}}

	case KeySoftDrop:
		if board.CanMove(*piece, 0, 1, piece.Rotation) {
			piece.Y++
			return []Event{DropEvent{Stamp: s.stamp(), Kind: EventSoftDrop, NewY: piece.Y}}
		}
		return s.lock(EventSoftDropLock)

	case KeyHardDrop:
		piece.Y += board.DropDistance(*piece)
		return s.lock(EventHardDropLock)

	case KeyRotateCW, KeyRotateCCW:
		if piece.Type == tetris.TypeO {
			// O-ミノの回転は見た目が変わらないので何も送らない
			return nil
		}
		dir := 1
		if code == KeyRotateCCW {
			dir = -1
		}
		if !tetris.TryRotate(piece, board, dir) {
			return nil
		}
		return []Event{RotateEvent{
			Stamp:       s.stamp(),
			Direction:   dir,
			NewRotation: piece.Rotation,
			NewX:        piece.X,
			NewY:        piece.Y,
		}}

	case KeyHoldLeft, KeyHoldRight:
		return s.hold()
	}
	return nil
}

// Tick は実時間 dt（秒）だけゲームを進めます。
// 固定タイムステップで重力を処理し、ポーズ中は dt に 0 が掛かるため時間経過による変化は起きません。
func (s *GameSession) Tick(dt float64) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.state.IsGameOver || dt <= 0 {
		return nil
	}
	if dt > maxFrameDelta {
		dt = maxFrameDelta
	}

	var events []Event
	s.accumulator += dt * s.pauseMultiplier
	for s.accumulator+epsilon >= TimeStep {
		s.accumulator -= TimeStep
		events = append(events, s.update(TimeStep)...)
		if s.state.IsGameOver {
			break
		}
	}
	return events
}

// update は1ステップ分の重力処理です。
func (s *GameSession) update(step float64) []Event {
	var events []Event
	s.state.DropTimer += step
	for s.state.DropTimer+epsilon >= s.state.DropIntervalSeconds {
		s.state.DropTimer -= s.state.DropIntervalSeconds
		piece := &s.state.CurrentPiece
		if s.state.Board.CanMove(*piece, 0, 1, piece.Rotation) {
			piece.Y++
			events = append(events, DropEvent{Stamp: s.stamp(), Kind: EventGravityDrop, NewY: piece.Y})
			continue
		}
		events = append(events, s.lock(EventGravityLock)...)
		if s.state.IsGameOver {
			break
		}
	}
	return events
}

// Pause はポーズしていなければポーズします（ウィンドウのフォーカスが外れたときなど）。
func (s *GameSession) Pause() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.state.IsGameOver || s.state.IsPaused {
		return nil
	}
	return []Event{s.togglePause()}
}

// SetPaused は相手のポーズに合わせて状態を切り替えます。イベントは返しません。
func (s *GameSession) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsPaused == paused {
		return
	}
	s.state.IsPaused = paused
	s.pauseMultiplier = 1
	if paused {
		s.pauseMultiplier = 0
	}
}

// Surrender は降参してゲームを終了します。
func (s *GameSession) Surrender() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.state.IsGameOver {
		return nil
	}
	s.state.IsGameOver = true
	s.running = false
	return []Event{GameOverEvent{Stamp: s.stamp(), PlayerID: s.state.UserID}}
}

func (s *GameSession) togglePause() Event {
	s.state.IsPaused = !s.state.IsPaused
	if s.state.IsPaused {
		s.pauseMultiplier = 0
		return StatusEvent{Stamp: s.stamp(), Kind: EventPause}
	}
	s.pauseMultiplier = 1
	return StatusEvent{Stamp: s.stamp(), Kind: EventResume}
}

// hold は現在のピースをホールドします。ピース1つにつき1回だけ使えます。
func (s *GameSession) hold() []Event {
	if !s.state.CanHold {
		return nil
	}
	prev := s.state.CurrentPiece.Type
	if s.state.HoldPiece == nil {
		s.nextPiece()
	} else {
		s.state.CurrentPiece = spawnPiece(*s.state.HoldPiece)
	}
	s.state.HoldPiece = &prev
	s.state.CanHold = false

	return []Event{HoldEvent{
		Stamp:        s.stamp(),
		HoldPiece:    prev,
		CurrentPiece: s.state.CurrentPiece,
		PreviewPiece: s.state.PreviewPiece,
	}}
}

// lock は現在のピースを固定し、ライン消去・お邪魔ブロックの取り込み/送信・次のピースの出現・
// レベル更新・ゲームオーバー判定・スコア加算をこの順で行います。
//
// Parameters:
//
//	kind : ロックの種類（ソフトドロップ / ハードドロップ / 重力）
//
// Returns:
//
//	[]Event: receive-garbage（取り込んだ場合）、ロックイベント、game-over（終了した場合）
func (s *GameSession) lock(kind EventType) []Event {
	var events []Event
	st := &s.state
	locked := st.CurrentPiece

	st.Board.Merge(locked)
	cleared := st.Board.ClearLines()

	toppedOut := false
	var garbageOut []tetris.Row
	if cleared == 0 && len(st.PendingGarbage) > 0 {
		incoming := st.PendingGarbage
		st.PendingGarbage = nil
		toppedOut = st.Board.AddGarbage(incoming)
		events = append(events, GarbageEvent{Stamp: s.stamp(), Kind: EventReceiveGarbage, GarbageLines: incoming})
	} else if n := GarbageForLines(cleared); n > 0 {
		garbageOut = tetris.NewGarbageRows(s.rng, n)
	}

	s.nextPiece()
	st.CanHold = true

	st.LinesCleared += cleared
	if level := LevelForLines(st.LinesCleared); level > st.Level {
		st.Level = level
		st.DropIntervalSeconds = DropSeconds(level)
	}

	if isGameOver(&st.Board, st.CurrentPiece, toppedOut) {
		st.IsGameOver = true
		s.running = false
	} else {
		st.Score += CalculateScore(cleared, st.Level)
	}

	events = append(events, LockEvent{
		Stamp:            s.stamp(),
		Kind:             kind,
		LockedPiece:      locked,
		NextPiece:        st.CurrentPiece,
		NextPreviewPiece: st.PreviewPiece,
		LinesCleared:     cleared,
		TotalLines:       st.LinesCleared,
		NewScore:         st.Score,
		NewLevel:         st.Level,
		GarbageToSend:    garbageOut,
	})
	if st.IsGameOver {
		events = append(events, GameOverEvent{Stamp: s.stamp(), PlayerID: st.UserID})
	}
	return events
}

// isGameOver はロックと次のピースの出現の直後に、ブロックアウト・ロックアウト・トップアウトを順に判定します。
func isGameOver(board *tetris.Board, spawned tetris.Piece, toppedOut bool) bool {
	if !board.CanMove(spawned, 0, 0, spawned.Rotation) {
		return true // ブロックアウト
	}
	if board.LockedOut() {
		return true // ロックアウト
	}
	return toppedOut // トップアウト
}
