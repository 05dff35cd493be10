package tetris

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDropFrames はレベルごとの落下フレーム数をテストします。
func TestDropFrames(t *testing.T) {
	tests := []struct {
		level  int
		frames int
	}{
		{0, 48}, {1, 43}, {2, 38}, {3, 33}, {4, 28}, {5, 23}, {6, 18}, {7, 13}, {8, 8}, {9, 6},
		{10, 5}, {12, 5}, {13, 4}, {15, 4}, {16, 3}, {18, 3}, {19, 2}, {28, 2}, {29, 1}, {99, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.frames, DropFrames(tt.level), "level %d", tt.level)
	}
	assert.InDelta(t, 0.1, DropSeconds(9), 1e-9)
}

func TestCalculateScore(t *testing.T) {
	assert.Equal(t, 0, CalculateScore(0, 5))
	assert.Equal(t, 100, CalculateScore(1, 0))
	assert.Equal(t, 300, CalculateScore(2, 0))
	assert.Equal(t, 500, CalculateScore(3, 0))
	assert.Equal(t, 800, CalculateScore(4, 0))
	assert.Equal(t, 1600, CalculateScore(4, 1))
	assert.Equal(t, 0, CalculateScore(5, 0))
}

func TestLevelAndGarbage(t *testing.T) {
	assert.Equal(t, 0, LevelForLines(9))
	assert.Equal(t, 1, LevelForLines(10))
	assert.Equal(t, 3, LevelForLines(39))

	assert.Equal(t, []int{0, 0, 1, 2, 4}, []int{
		GarbageForLines(0), GarbageForLines(1), GarbageForLines(2), GarbageForLines(3), GarbageForLines(4),
	})
}
