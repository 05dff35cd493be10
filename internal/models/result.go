package models

import (
	"time"
)

// MatchResult は1試合の勝敗の記録です。
// サーバーは最初に届いた game-over-event をもとに記録し、ルームの状態と一緒に返します。
type MatchResult struct {
	RoomID   string    `json:"roomId"`
	WinnerID string    `json:"winnerId,omitempty"` // 相手がいない場合は空
	LoserID  string    `json:"loserId"`
	EndedAt  time.Time `json:"endedAt"`
}
