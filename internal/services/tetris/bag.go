package tetris

import (
	"math/rand"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models/tetris"
)

// Draw は Bag.Next の結果です。Preview は次に引かれるピースです。
type Draw struct {
	Piece   tetris.PieceType
	Preview tetris.PieceType
}

// Bag は 7-bag 方式のランダマイザーです。
// 7種類を1つずつシャッフルした袋から順に取り出し、空になったら新しい袋をシャッフルして補充します。
// 袋の境目では同じ種類が2回続くことがあり、これは標準的な 7-bag の挙動です。
type Bag struct {
	rng   *rand.Rand
	queue []tetris.PieceType
}

// NewBag は rng を使う新しい Bag を作成します。
func NewBag(rng *rand.Rand) *Bag {
	return &Bag{rng: rng}
}

// refill は新しくシャッフルした7種類を末尾に追加します。
func (b *Bag) refill() {
	bag := tetris.AllPieceTypes
	b.rng.Shuffle(len(bag), func(i, j int) {
		bag[i], bag[j] = bag[j], bag[i]
	})
	b.queue = append(b.queue, bag[:]...)
}

// Next は次のピースを取り出し、その次に出るピースをプレビューとして一緒に返します。
func (b *Bag) Next() Draw {
	// 取り出した後もプレビュー用に1つ残っている必要がある
	for len(b.queue) < 2 {
		b.refill()
	}
	piece := b.queue[0]
	b.queue = b.queue[1:]
	return Draw{Piece: piece, Preview: b.queue[0]}
}
