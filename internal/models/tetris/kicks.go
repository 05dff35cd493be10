package tetris

// Offset はウォールキックで試す平行移動量です。Y は下向きが正です。
type Offset struct {
	X int
	Y int
}

type rotationPair struct {
	from int
	to   int
}

// jlstzKicks は J, L, S, T, Z 共通の SRS キックテーブルです。順序に意味があります。
var jlstzKicks = map[rotationPair][5]Offset{
	{0, 1}: {{0, 0}, {-1, 0}, {-1, 1}, {0, -2}, {-1, -2}},
	{1, 0}: {{0, 0}, {1, 0}, {1, -1}, {0, 2}, {1, 2}},
	{1, 2}: {{0, 0}, {1, 0}, {1, -1}, {0, 2}, {1, 2}},
	{2, 1}: {{0, 0}, {1, 0}, {1, 1}, {0, -2}, {1, -2}},
	{2, 3}: {{0, 0}, {-1, 0}, {-1, 1}, {0, -2}, {-1, -2}},
	{3, 2}: {{0, 0}, {-1, 0}, {-1, -1}, {0, 2}, {-1, 2}},
	{3, 0}: {{0, 0}, {-1, 0}, {-1, -1}, {0, 2}, {-1, 2}},
	{0, 3}: {{0, 0}, {1, 0}, {1, 1}, {0, -2}, {1, -2}},
}

// iKicks は I-ミノ専用の SRS キックテーブルです。
var iKicks = map[rotationPair][5]Offset{
	{0, 1}: {{0, 0}, {-2, 0}, {1, 0}, {-2, -1}, {1, 2}},
	{1, 0}: {{0, 0}, {2, 0}, {-1, 0}, {2, 1}, {-1, -2}},
	{1, 2}: {{0, 0}, {-1, 0}, {2, 0}, {-1, 2}, {2, -1}},
	{2, 1}: {{0, 0}, {1, 0}, {-2, 0}, {1, -2}, {-2, 1}},
	{2, 3}: {{0, 0}, {2, 0}, {-1, 0}, {2, 1}, {-1, -2}},
	{3, 2}: {{0, 0}, {-2, 0}, {1, 0}, {-2, -1}, {1, 2}},
	{3, 0}: {{0, 0}, {1, 0}, {-2, 0}, {1, -2}, {-2, 1}},
	{0, 3}: {{0, 0}, {-1, 0}, {2, 0}, {-1, 2}, {2, -1}},
}

// KickOffsets は from から to への回転で試すオフセットを順番に返します。
// O-ミノや隣接しない回転の組み合わせでは nil を返します。
func KickOffsets(t PieceType, from, to int) []Offset {
	table := jlstzKicks
	switch t {
	case TypeO:
		return nil
	case TypeI:
		table = iKicks
	}
	kicks, ok := table[rotationPair{normalizeRotation(from), normalizeRotation(to)}]
	if !ok {
		return nil
	}
	return kicks[:]
}

// TryRotate はピースを direction (1: 時計回り, -1: 反時計回り) に回転させます。
// キックテーブルの順にオフセットを試し、最初に衝突しなかったものを適用します。
//
// Parameters:
//
//	p         : 回転させるピース（成功時のみ書き換えられます）
//	b         : 衝突判定に使うボード
//	direction : 1 または -1
//
// Returns:
//
//	bool: 回転できた場合は true。O-ミノは常に true で、位置も回転も変わりません。
func TryRotate(p *Piece, b *Board, direction int) bool {
	if p.Type == TypeO {
		return true
	}
	if direction != 1 && direction != -1 {
		return false
	}
	from := normalizeRotation(p.Rotation)
	to := normalizeRotation(from + direction)
	for _, k := range KickOffsets(p.Type, from, to) {
		if b.CanMove(*p, k.X, k.Y, to) {
			p.X += k.X
			p.Y += k.Y
			p.Rotation = to
			return true
		}
	}
	return false
}
