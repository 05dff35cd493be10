package tetris

const (
	FramesPerSecond = 60
	LinesPerLevel   = 10 // レベルアップに必要なライン数
)

// lineClearScores は1回のロックで消えた行数ごとの基本点です。
var lineClearScores = [...]int{0, 100, 300, 500, 800}

// garbageLines は消えた行数ごとに相手へ送るお邪魔行数です。
var garbageLines = [...]int{0, 0, 1, 2, 4}

// DropFrames はレベルごとの自動落下間隔をフレーム数 (1/60秒) で返します。
// NES版の落下速度表と同じ値です。
func DropFrames(level int) int {
	switch {
	case level <= 0:
		return 48
	case level <= 9:
		return [...]int{48, 43, 38, 33, 28, 23, 18, 13, 8, 6}[level]
	case level <= 12:
		return 5
	case level <= 15:
		return 4
	case level <= 18:
		return 3
	case level <= 28:
		return 2
	default:
		return 1
	}
}

// DropSeconds はレベルごとの自動落下間隔を秒で返します。
func DropSeconds(level int) float64 {
	return float64(DropFrames(level)) / FramesPerSecond
}

// CalculateScore は1回のロックで加算するスコアを計算します。
//
// Parameters:
//
//	clearedLines : 消えた行数 (0-4)
//	level        : ロック後のレベル
//
// Returns:
//
//	int: 加算するスコア
func CalculateScore(clearedLines int, level int) int {
	if clearedLines < 0 || clearedLines >= len(lineClearScores) {
		return 0
	}
	return lineClearScores[clearedLines] * (level + 1)
}

// LevelForLines は累計ライン数からレベルを求めます。
func LevelForLines(totalLines int) int {
	return totalLines / LinesPerLevel
}

// GarbageForLines は消えた行数から相手に送るお邪魔行数を求めます。
func GarbageForLines(clearedLines int) int {
	if clearedLines < 0 || clearedLines >= len(garbageLines) {
		return 0
	}
	return garbageLines[clearedLines]
}
