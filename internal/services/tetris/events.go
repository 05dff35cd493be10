package tetris

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models/tetris"
)

// EventType は TetrisEvent の種類を表す識別子です。JSON の "type" フィールドに入ります。
type EventType string

const (
	EventPlayerMove     EventType = "piece-player-move"
	EventPlayerRotate   EventType = "piece-player-rotate"
	EventSoftDrop       EventType = "piece-soft-drop"
	EventSoftDropLock   EventType = "piece-soft-drop-lock"
	EventHardDropLock   EventType = "piece-hard-drop-lock"
	EventGravityDrop    EventType = "piece-gravity-drop"
	EventGravityLock    EventType = "piece-gravity-lock"
	EventPause          EventType = "game-pause"
	EventResume         EventType = "game-resume"
	EventGameOver       EventType = "game-over"
	EventHold           EventType = "hold"
	EventSendGarbage    EventType = "send-garbage"
	EventReceiveGarbage EventType = "receive-garbage"
	EventInitialSpawn   EventType = "initial-piece-spawn"
)

var (
	ErrUnknownEvent = errors.New("unknown tetris event")
	ErrInvalidPiece = errors.New("invalid piece in tetris event")
)

// Event はゲームセッションの状態遷移を表す TetrisEvent です。
// 実装はこのパッケージ内の型に限られます。
type Event interface {
	Type() EventType
	Time() int64
}

// Stamp はすべてのイベントが持つタイムスタンプ（ミリ秒）です。
type Stamp struct {
	Timestamp int64 `json:"timestamp"`
}

func (s Stamp) Time() int64 { return s.Timestamp }

// MoveEvent は左右移動です。
type MoveEvent struct {
	Stamp
	DeltaX int `json:"deltaX"`
}

func (MoveEvent) Type() EventType { return EventPlayerMove }

// RotateEvent は回転です。キック後の座標も含むため、受信側は判定なしでそのまま適用できます。
type RotateEvent struct {
	Stamp
	Direction   int `json:"direction"`
	NewRotation int `json:"newRotation"`
	NewX        int `json:"newX"`
	NewY        int `json:"newY"`
}

func (RotateEvent) Type() EventType { return EventPlayerRotate }

// DropEvent はソフトドロップまたは重力による1マスの落下です。
type DropEvent struct {
	Stamp
	Kind EventType `json:"-"`
	NewY int       `json:"newY"`
}

func (e DropEvent) Type() EventType { return e.Kind }

// LockEvent はピースの固定です。受信側が再計算せずに結果の状態を再現できるだけの情報を持ちます。
type LockEvent struct {
	Stamp
	Kind             EventType        `json:"-"`
	LockedPiece      tetris.Piece     `json:"lockedPiece"`
	NextPiece        tetris.Piece     `json:"nextPiece"`
	NextPreviewPiece tetris.PieceType `json:"nextPreviewPiece"`
	LinesCleared     int              `json:"linesCleared"`
	TotalLines       int              `json:"totalLines"`
	NewScore         int              `json:"newScore"`
	NewLevel         int              `json:"newLevel"`
	GarbageToSend    []tetris.Row     `json:"garbageToSend,omitempty"`
}

func (e LockEvent) Type() EventType { return e.Kind }

// StatusEvent はポーズと再開です。
type StatusEvent struct {
	Stamp
	Kind EventType `json:"-"`
}

func (e StatusEvent) Type() EventType { return e.Kind }

// GameOverEvent はゲームオーバーです。PlayerID は負けたプレイヤーです。
type GameOverEvent struct {
	Stamp
	PlayerID string `json:"playerId"`
}

func (GameOverEvent) Type() EventType { return EventGameOver }

// HoldEvent はホールドです。
type HoldEvent struct {
	Stamp
	HoldPiece    tetris.PieceType `json:"holdPiece"`
	CurrentPiece tetris.Piece     `json:"currentPiece"`
	PreviewPiece tetris.PieceType `json:"previewPiece"`
}

func (HoldEvent) Type() EventType { return EventHold }

// GarbageEvent はお邪魔行の送信 (send-garbage) と取り込み (receive-garbage) です。
type GarbageEvent struct {
	Stamp
	Kind         EventType    `json:"-"`
	GarbageLines []tetris.Row `json:"garbageLines"`
}

func (e GarbageEvent) Type() EventType { return e.Kind }

// InitialSpawnEvent は最初のピースの出現です。
type InitialSpawnEvent struct {
	Stamp
	Piece        tetris.Piece     `json:"piece"`
	PreviewPiece tetris.PieceType `json:"previewPiece"`
}

func (InitialSpawnEvent) Type() EventType { return EventInitialSpawn }

// newEvent は type に対応する空のイベントを返します。
func newEvent(t EventType) (Event, error) {
	switch t {
	case EventPlayerMove:
		return &MoveEvent{}, nil
	case EventPlayerRotate:
		return &RotateEvent{}, nil
	case EventSoftDrop, EventGravityDrop:
		return &DropEvent{Kind: t}, nil
	case EventSoftDropLock, EventHardDropLock, EventGravityLock:
		return &LockEvent{Kind: t}, nil
	case EventPause, EventResume:
		return &StatusEvent{Kind: t}, nil
	case EventGameOver:
		return &GameOverEvent{}, nil
	case EventHold:
		return &HoldEvent{}, nil
	case EventSendGarbage, EventReceiveGarbage:
		return &GarbageEvent{Kind: t}, nil
	case EventInitialSpawn:
		return &InitialSpawnEvent{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, t)
}

// EncodeEvent はイベントを {"type": ..., ...} 形式の JSON にエンコードします。
func EncodeEvent(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("イベントのエンコードに失敗しました: %w", err)
	}
	typ, err := json.Marshal(e.Type())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeEvent は EncodeEvent の出力（またはクライアントが送った同じ形式の JSON）をデコードします。
// 返す値は具体型の値（ポインタではない）です。
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("イベントのデコードに失敗しました: %w", err)
	}
	ev, err := newEvent(head.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, fmt.Errorf("イベント %q のデコードに失敗しました: %w", head.Type, err)
	}
	return deref(ev), nil
}

func deref(e Event) Event {
	switch v := e.(type) {
	case *MoveEvent:
		return *v
	case *RotateEvent:
		return *v
	case *DropEvent:
		return *v
	case *LockEvent:
		return *v
	case *StatusEvent:
		return *v
	case *GameOverEvent:
		return *v
	case *HoldEvent:
		return *v
	case *GarbageEvent:
		return *v
	case *InitialSpawnEvent:
		return *v
	}
	return e
}
