package tetris

import "fmt"

// PieceType はテトリミノの種類を表します。
type PieceType int

const (
	TypeI PieceType = iota // 0: I-ミノ
	TypeO                  // 1: O-ミノ
	TypeT                  // 2: T-ミノ
	TypeS                  // 3: S-ミノ
	TypeZ                  // 4: Z-ミノ
	TypeJ                  // 5: J-ミノ
	TypeL                  // 6: L-ミノ
)

// AllPieceTypes は7種類すべてのテトリミノです。7-bag の中身として使われます。
var AllPieceTypes = [...]PieceType{TypeI, TypeJ, TypeL, TypeO, TypeS, TypeZ, TypeT}

// PieceSize は回転グリッドの一辺の長さです。
const PieceSize = 4

// Grid は1つの回転状態を表す 4x4 のマスです。Grid[row][col] が true なら埋まっています。
type Grid [PieceSize][PieceSize]bool

// Tetromino は不変の形状定義です。4つの回転状態と表示色を持ちます。
type Tetromino struct {
	Rotations [4]Grid
	Color     string
}

// grid は "0110" のような行表記から Grid を組み立てます。足りない行は空行です。
func grid(rows ...string) Grid {
	var g Grid
	for r, row := range rows {
		for c, ch := range row {
			g[r][c] = ch == '1'
		}
	}
	return g
}

// tetrominoes は7種類のテトリミノの回転グリッドと色です。
// 回転インデックスは 0=スポーン, 1=R(時計回り), 2=180度, 3=L(反時計回り) です。
var tetrominoes = map[PieceType]Tetromino{
	TypeI: {
		Rotations: [4]Grid{
			grid("0000", "1111"),
			grid("0010", "0010", "0010", "0010"),
			grid("0000", "0000", "1111"),
			grid("0100", "0100", "0100", "0100"),
		},
		Color: "#8CE4FF",
	},
	TypeJ: {
		Rotations: [4]Grid{
			grid("1000", "1110"),
			grid("0110", "0100", "0100"),
			grid("0000", "1110", "0010"),
			grid("0100", "0100", "1100"),
		},
		Color: "#0F4C75",
	},
	TypeL: {
		Rotations: [4]Grid{
			grid("0010", "1110"),
			grid("0100", "0100", "0110"),
			grid("0000", "1110", "1000"),
			grid("1100", "0100", "0100"),
		},
		Color: "#FF6C0C",
	},
	TypeO: {
		Rotations: [4]Grid{
			grid("0110", "0110"),
			grid("0110", "0110"),
			grid("0110", "0110"),
			grid("0110", "0110"),
		},
		Color: "yellow",
	},
	TypeS: {
		Rotations: [4]Grid{
			grid("0110", "1100"),
			grid("0100", "0110", "0010"),
			grid("0000", "0110", "1100"),
			grid("1000", "1100", "0100"),
		},
		Color: "green",
	},
	TypeZ: {
		Rotations: [4]Grid{
			grid("1100", "0110"),
			grid("0010", "0110", "0100"),
			grid("0000", "1100", "0110"),
			grid("0100", "1100", "1000"),
		},
		Color: "#FF5656",
	},
	TypeT: {
		Rotations: [4]Grid{
			grid("0100", "1110"),
			grid("0100", "0110", "0100"),
			grid("0000", "1110", "0100"),
			grid("0100", "1100", "0100"),
		},
		Color: "#8C00FF",
	},
}

// TetrominoOf は指定した種類の形状定義を値で返します。
func TetrominoOf(t PieceType) Tetromino {
	return tetrominoes[t]
}

// Valid は t が7種類のいずれかである場合に true を返します。
func (t PieceType) Valid() bool {
	_, ok := tetrominoes[t]
	return ok
}

// Color はテトリミノの表示色です。
func (t PieceType) Color() string {
	return tetrominoes[t].Color
}

func (t PieceType) String() string {
	return PieceTypeToString(t)
}

// MarshalText は "T" のような1文字表記でエンコードします。
func (t PieceType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("不正なテトリミノの種類です: %d", int(t))
	}
	return []byte(PieceTypeToString(t)), nil
}

// UnmarshalText は1文字表記からデコードします。
func (t *PieceType) UnmarshalText(text []byte) error {
	pt, ok := StringToPieceType(string(text))
	if !ok {
		return fmt.Errorf("不正なテトリミノの種類です: %q", string(text))
	}
	*t = pt
	return nil
}

// Piece は落下中のテトリミノです。
// X, Y は 4x4 グリッド左上のボード座標、Rotation は 0〜3 の回転インデックスです。
type Piece struct {
	Type     PieceType `json:"tetrominoType"`
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Rotation int       `json:"rotation"`
}

// Cells は指定された回転状態で埋まっているマスの、グリッド内の相対座標 (col, row) を返します。
//
// Parameters:
//
//	rotation : 回転インデックス (0〜3)
//
// Returns:
//
//	[][2]int: 各ブロックの相対座標の配列。例: {{x1, y1}, {x2, y2}, ...}
func (p Piece) Cells(rotation int) [][2]int {
	g := tetrominoes[p.Type].Rotations[normalizeRotation(rotation)]
	cells := make([][2]int, 0, 4)
	for row := 0; row < PieceSize; row++ {
		for col := 0; col < PieceSize; col++ {
			if g[row][col] {
				cells = append(cells, [2]int{col, row})
			}
		}
	}
	return cells
}

// Blocks は現在の回転状態でのブロックの相対座標です。
func (p Piece) Blocks() [][2]int {
	return p.Cells(p.Rotation)
}

// Validate はイベントなど外部から受け取ったピースの値を検証します。
func (p Piece) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("不正なテトリミノの種類です: %d", int(p.Type))
	}
	if p.Rotation < 0 || p.Rotation > 3 {
		return fmt.Errorf("不正な回転インデックスです: %d", p.Rotation)
	}
	return nil
}

func normalizeRotation(r int) int {
	return ((r % 4) + 4) % 4
}

// StringToPieceType は文字列のテトリミノタイプ（"I", "O", "T"など）をPieceTypeに変換します。
func StringToPieceType(s string) (PieceType, bool) {
	switch s {
	case "I":
		return TypeI, true
	case "O":
		return TypeO, true
	case "T":
		return TypeT, true
	case "S":
		return TypeS, true
	case "Z":
		return TypeZ, true
	case "J":
		return TypeJ, true
	case "L":
		return TypeL, true
	default:
		return TypeI, false
	}
}

// PieceTypeToString はPieceTypeを文字列表現に変換します。
func PieceTypeToString(t PieceType) string {
	switch t {
	case TypeI:
		return "I"
	case TypeO:
		return "O"
	case TypeT:
		return "T"
	case TypeS:
		return "S"
	case TypeZ:
		return "Z"
	case TypeJ:
		return "J"
	case TypeL:
		return "L"
	default:
		return "?"
	}
}
