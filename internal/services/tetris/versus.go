package tetris

import (
	"sync"
)

// ソケットで送るイベント名
const (
	SocketGameAction = "game-action"
	SocketGamePause  = "game-pause-event"
	SocketGameOver   = "game-over-event"
)

// Outgoing はホストのイベントを、どのソケットイベントで送るかと組にしたものです。
type Outgoing struct {
	SocketEvent string
	Action      Event
}

// Result は対戦の勝敗です。
type Result struct {
	WinnerID string `json:"winnerId"`
	LoserID  string `json:"loserId"`
}

// Versus はクライアント側の同期プロトコルです。
// 自分のホストセッションのイベントを送信用に振り分け、相手から届いたイベントをミラーまたは
// 自分のホスト（お邪魔ブロック）に届け、最初に届いた game-over で勝敗を決めます。
type Versus struct {
	Host   *GameSession
	Mirror *Mirror

	localID    string
	opponentID string

	mu     sync.Mutex
	result *Result
}

// NewVersus は localID（自分）と opponentID（相手）の対戦を作成します。
func NewVersus(localID, opponentID string, seed int64) *Versus {
	return &Versus{
		Host:       NewGameSession(localID, seed),
		Mirror:     NewMirror(opponentID),
		localID:    localID,
		opponentID: opponentID,
	}
}

// Outbound はホストのイベントを送信用に振り分けます。
// ポーズ/再開は game-pause-event、ゲームオーバーは game-over-event、それ以外は game-action です。
// ロックイベントのお邪魔ブロックは取り除き、直後に別の send-garbage として送ります。
func (v *Versus) Outbound(events []Event) []Outgoing {
	out := make([]Outgoing, 0, len(events))
	for _, e := range events {
		switch ev := e.(type) {
		case StatusEvent:
			out = append(out, Outgoing{SocketEvent: SocketGamePause, Action: ev})
		case GameOverEvent:
			out = append(out, Outgoing{SocketEvent: SocketGameOver, Action: ev})
		case LockEvent:
			garbage := ev.GarbageToSend
			ev.GarbageToSend = nil
			out = append(out, Outgoing{SocketEvent: SocketGameAction, Action: ev})
			if len(garbage) > 0 {
				out = append(out, Outgoing{SocketEvent: SocketGameAction, Action: GarbageEvent{
					Stamp:        ev.Stamp,
					Kind:         EventSendGarbage,
					GarbageLines: garbage,
				}})
			}
		default:
			out = append(out, Outgoing{SocketEvent: SocketGameAction, Action: e})
		}
	}
	return out
}

// HandleOpponent は相手から届いた game-action を処理します。
// send-garbage は自分のホストの保留キューへ、それ以外はミラーへ適用します。
func (v *Versus) HandleOpponent(e Event) error {
	if g, ok := e.(GarbageEvent); ok && g.Kind == EventSendGarbage {
		v.Host.QueueGarbage(g.GarbageLines)
		return nil
	}
	return v.Mirror.Apply(e)
}

// HandlePause は game-pause-event を処理します。送信者自身にも届くため、両方の画面が同じ状態になります。
func (v *Versus) HandlePause(e StatusEvent) {
	paused := e.Kind == EventPause
	v.Host.SetPaused(paused)
	v.Mirror.SetPaused(paused)
}

// HandleGameOver は game-over-event を処理します。
// 最初に届いたイベントだけが勝敗を決め、それ以降は無視されます（ok が false）。
// 2人がほぼ同時に終了した場合は、実際の終了時刻ではなく到着順で決まります。
func (v *Versus) HandleGameOver(e GameOverEvent) (Result, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.result != nil {
		return *v.result, false
	}
	r := Result{LoserID: e.PlayerID, WinnerID: v.localID}
	if e.PlayerID == v.localID {
		r.WinnerID = v.opponentID
	}
	v.result = &r

	v.Host.Stop()
	if e.PlayerID == v.opponentID {
		v.Mirror.MarkGameOver()
	}
	return r, true
}

// Result は決着済みなら勝敗を返します。
func (v *Versus) Result() (Result, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.result == nil {
		return Result{}, false
	}
	return *v.result, true
}
