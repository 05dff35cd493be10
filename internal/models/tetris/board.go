package tetris

import (
	"math/rand"
)

const (
	BoardWidth  = 10                        // テトリスボードの幅
	VisibleRows = 20                        // 表示部分の行数
	HiddenRows  = 20                        // 表示部分の上にあるバッファ行数
	TotalRows   = VisibleRows + HiddenRows // ボード全体の行数

	// SpawnRows はバッファ最下部の、スポーン用に予約された行数です。
	// ロックアウト判定はこれより上のバッファ行 (0〜HiddenRows-SpawnRows-1) だけを見ます。
	SpawnRows = 2

	GarbageColor = "#808080" // お邪魔ブロックの色
)

// BoardCell はボード上の1マスです。
type BoardCell struct {
	Occupied bool   `json:"occupied"`
	Color    string `json:"color,omitempty"`
}

// Row はボードの1行です。
type Row [BoardWidth]BoardCell

// Board はテトリスのゲームボードです。
// Board[y][x] でアクセスします。y=0 がバッファの最上段、y=TotalRows-1 が最下段です。
// 幅と高さはセッション中ずっと変わらず、行の中身だけが入れ替わります。
// 配列なので代入でそのままコピーされます。
type Board [TotalRows]Row

// NewBoard は新しい空のボードを返します。
func NewBoard() Board {
	var board Board
	return board
}

// CanMove は指定されたピースを (dx, dy) だけ平行移動し、rotation の回転状態にしたとき、
// そのポーズにピースが存在できるかどうかを判定します。
// 移動・重力・ハードドロップ・スポーン時のブロックアウト判定はすべてこの関数を使います。
//
// Parameters:
//
//	p        : 判定するピース
//	dx       : X軸方向の移動量
//	dy       : Y軸方向の移動量（下が正）
//	rotation : 判定する回転インデックス
//
// Returns:
//
//	bool: 置ける場合は true
func (b *Board) CanMove(p Piece, dx, dy, rotation int) bool {
	for _, cell := range p.Cells(rotation) {
		x := p.X + cell[0] + dx
		y := p.Y + cell[1] + dy

		if x < 0 || x >= BoardWidth || y >= TotalRows {
			return false
		}
		// ボードより上 (y < 0) は常に許可
		if y >= 0 && b[y][x].Occupied {
			return false
		}
	}
	return true
}

// DropDistance は p が真下に何マス落下できるかを返します。
func (b *Board) DropDistance(p Piece) int {
	d := 0
	for b.CanMove(p, 0, d+1, p.Rotation) {
		d++
	}
	return d
}

// Merge はピースをボードに固定します。ボード外のマスは捨てられます。
func (b *Board) Merge(p Piece) {
	color := p.Type.Color()
	for _, cell := range p.Blocks() {
		x := p.X + cell[0]
		y := p.Y + cell[1]
		if x >= 0 && x < BoardWidth && y >= 0 && y < TotalRows {
			b[y][x] = BoardCell{Occupied: true, Color: color}
		}
	}
}

// Full は行がすべて埋まっている場合に true を返します。
func (r Row) Full() bool {
	for _, c := range r {
		if !c.Occupied {
			return false
		}
	}
	return true
}

// Empty は行に1つも埋まったマスがない場合に true を返します。
func (r Row) Empty() bool {
	for _, c := range r {
		if c.Occupied {
			return false
		}
	}
	return true
}

// ClearLines は揃った行を下から順に取り除き、上に空行を補充します。
// 取り除いた後は同じ行インデックスをもう一度調べます（上の行が降りてくるため）。
//
// Returns:
//
//	int: 消えた行数 (0〜4)
func (b *Board) ClearLines() int {
	cleared := 0
	for y := TotalRows - 1; y >= 0; {
		if !b[y].Full() {
			y--
			continue
		}
		copy(b[1:y+1], b[0:y])
		b[0] = Row{}
		cleared++
	}
	return cleared
}

// NewGarbageRow は穴が1つだけのお邪魔ブロックの行を生成します。
// 穴の位置は rng で一様に選ばれます。
func NewGarbageRow(rng *rand.Rand) Row {
	var row Row
	hole := rng.Intn(BoardWidth)
	for x := range row {
		if x != hole {
			row[x] = BoardCell{Occupied: true, Color: GarbageColor}
		}
	}
	return row
}

// NewGarbageRows は n 行のお邪魔ブロックを生成します。
func NewGarbageRows(rng *rand.Rand, n int) []Row {
	if n <= 0 {
		return nil
	}
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = NewGarbageRow(rng)
	}
	return rows
}

// AddGarbage は上から len(rows) 行を取り除き、最下部に rows を追加します。
// 取り除いた行にブロックが残っていた場合（ボードの外に押し出された場合）は true を返します。
//
// Parameters:
//
//	rows : 追加するお邪魔ブロックの行（上から順）
//
// Returns:
//
//	bool: ブロックが盤面の外へ押し出された場合は true（トップアウト）
func (b *Board) AddGarbage(rows []Row) bool {
	n := len(rows)
	if n == 0 {
		return false
	}
	overflow := false
	removed := n
	if removed > TotalRows {
		removed = TotalRows
	}
	for y := 0; y < removed; y++ {
		if !b[y].Empty() {
			overflow = true
			break
		}
	}
	if n >= TotalRows {
		// ボード全体が押し出され、収まらないお邪魔行も外にはみ出す
		copy(b[:], rows[n-TotalRows:])
		return overflow || n > TotalRows
	}
	copy(b[0:TotalRows-n], b[n:])
	copy(b[TotalRows-n:], rows)
	return overflow
}

// LockedOut はスポーン行より上のバッファ行にブロックが残っている場合に true を返します。
func (b *Board) LockedOut() bool {
	for y := 0; y < HiddenRows-SpawnRows; y++ {
		if !b[y].Empty() {
			return true
		}
	}
	return false
}
