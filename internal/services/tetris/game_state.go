package tetris

import (
	"math/rand"
	"sync"
	"time"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models/tetris"
)

const (
	SpawnRowI     = tetris.HiddenRows - 1 // I-ミノのスポーン行
	SpawnRowOther = tetris.HiddenRows - 2 // その他のスポーン行
	SpawnColumn   = (tetris.BoardWidth - tetris.PieceSize) / 2
)

// GameState は1人のプレイヤーのゲーム状態です。
// GameSession（ホスト）または Mirror（相手側の再生）だけが書き換え、描画側は読み取り専用で使います。
type GameState struct {
	UserID              string            `json:"userId"`
	Board               tetris.Board      `json:"board"`
	CurrentPiece        tetris.Piece      `json:"currentPiece"`
	PreviewPiece        tetris.PieceType  `json:"previewPiece"`
	HoldPiece           *tetris.PieceType `json:"holdPiece"`
	CanHold             bool              `json:"canHold"`
	Score               int               `json:"score"`
	Level               int               `json:"level"`
	LinesCleared        int               `json:"linesCleared"`
	DropTimer           float64           `json:"dropTimer"`
	DropIntervalSeconds float64           `json:"dropIntervalSeconds"`
	IsGameOver          bool              `json:"isGameOver"`
	IsPaused            bool              `json:"isPaused"`
	PendingGarbage      []tetris.Row      `json:"pendingGarbage"`
}

// Clone は GameState のディープコピーを返します。
func (s *GameState) Clone() GameState {
	c := *s
	if s.HoldPiece != nil {
		h := *s.HoldPiece
		c.HoldPiece = &h
	}
	if s.PendingGarbage != nil {
		c.PendingGarbage = append([]tetris.Row(nil), s.PendingGarbage...)
	}
	return c
}

// newGameState は空のボードとレベル0の初期状態を作成します。
func newGameState(userID string) GameState {
	return GameState{
		UserID:              userID,
		Board:               tetris.NewBoard(),
		CanHold:             true,
		DropIntervalSeconds: DropSeconds(0),
	}
}

// GameSession はホスト側で1人分のゲームを実際にシミュレーションします。
// 入力とタイマー進行に応じて状態を更新し、観測可能な変化ごとに Event を返します。
type GameSession struct {
	mu              sync.Mutex
	state           GameState
	bag             *Bag
	rng             *rand.Rand // お邪魔ブロックの穴の位置
	accumulator     float64
	pauseMultiplier float64
	running         bool
	now             func() time.Time
}

// NewGameSession は新しいゲームセッションを作成します。
//
// Parameters:
//
//	userID : このセッションのプレイヤーID（ゲームオーバーイベントに入ります）
//	seed   : 7-bag とお邪魔ブロック生成に使う乱数シード
//
// Returns:
//
//	*GameSession: 開始前のセッション。Start を呼ぶまで入力もタイマーも受け付けません。
func NewGameSession(userID string, seed int64) *GameSession {
	rng := rand.New(rand.NewSource(seed))
	return &GameSession{
		state:           newGameState(userID),
		bag:             NewBag(rand.New(rand.NewSource(rng.Int63()))),
		rng:             rng,
		pauseMultiplier: 1,
		now:             time.Now,
	}
}

// SetClock はイベントのタイムスタンプに使う時計を差し替えます。
func (s *GameSession) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Start はボードを初期化して最初のピースを出現させ、initial-piece-spawn イベントを返します。
func (s *GameSession) Start() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = newGameState(s.state.UserID)
	s.accumulator = 0
	s.pauseMultiplier = 1
	d := s.bag.Next()
	s.state.CurrentPiece = spawnPiece(d.Piece)
	s.state.PreviewPiece = d.Preview
	s.running = true

	return []Event{InitialSpawnEvent{
		Stamp:        s.stamp(),
		Piece:        s.state.CurrentPiece,
		PreviewPiece: s.state.PreviewPiece,
	}}
}

// Stop はセッションを停止します。以降の Tick と入力は無視されます。
func (s *GameSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// Running はセッションが進行中かどうかを返します。
func (s *GameSession) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.state.IsGameOver
}

// State は現在のゲーム状態のコピーを返します。
func (s *GameSession) State() GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// QueueGarbage は相手から送られたお邪魔行を保留キューに追加します。
// 実際に盤面へ入るのは、次にライン消去のないロックが起きたときです。
func (s *GameSession) QueueGarbage(lines []tetris.Row) {
	if len(lines) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PendingGarbage = append(s.state.PendingGarbage, lines...)
}

// nextPiece は 7-bag から次のピースを引き、現在のピースとプレビューを更新します。
func (s *GameSession) nextPiece() {
	d := s.bag.Next()
	s.state.CurrentPiece = spawnPiece(d.Piece)
	s.state.PreviewPiece = d.Preview
}

func (s *GameSession) stamp() Stamp {
	return Stamp{Timestamp: s.now().UnixMilli()}
}

// spawnPiece はスポーン位置に回転0のピースを作成します。
func spawnPiece(t tetris.PieceType) tetris.Piece {
	y := SpawnRowOther
	if t == tetris.TypeI {
		y = SpawnRowI
	}
	return tetris.Piece{Type: t, X: SpawnColumn, Y: y, Rotation: 0}
}
