package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/models"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/services/tetris"
)

var (
	// ErrJoinDeclined は参加リクエストが拒否されたかタイムアウトしたことを表します。
	ErrJoinDeclined = errors.New("join request declined")
	// ErrOpponentLeft は対戦開始前に相手が退出したことを表します。
	ErrOpponentLeft = errors.New("opponent left the room")
	// ErrDisconnected はサーバーとの接続が切れたことを表します。
	ErrDisconnected = errors.New("disconnected from server")
)

// botKeys はボットがランダムに押すキーです。ポーズは押しません。
var botKeys = []string{
	tetris.KeyLeft, tetris.KeyRight, tetris.KeySoftDrop, tetris.KeyHardDrop,
	tetris.KeyRotateCW, tetris.KeyRotateCCW, tetris.KeyHoldLeft,
}

// BotConfig はボットの設定です。
type BotConfig struct {
	RoomID       string        // 空ならルームを作成してホストになる
	Username     string        // ルームに表示する名前
	Seed         int64         // 7-bag と入力の乱数シード
	TickInterval time.Duration // 1フレームの実時間。既定は 1/60 秒
	InputChance  float64       // 1フレームでキーを押す確率。既定は 0.15
	Logger       *logrus.Logger
}

// Bot はヘッドレスの対戦クライアントです。
// ルームを作成（または参加）して準備完了にし、自分のゲームをシミュレーションして
// イベントを送りながら、相手のイベントをミラーに反映します。
type Bot struct {
	conn   *Conn
	cfg    BotConfig
	rng    *rand.Rand
	log    *logrus.Entry
	roomID string
	room   models.Room
}

// NewBot は認証済みの接続からボットを作成します。
func NewBot(conn *Conn, cfg BotConfig) *Bot {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second / tetris.FramesPerSecond
	}
	if cfg.InputChance <= 0 {
		cfg.InputChance = 0.15
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Bot{
		conn: conn,
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		log:  cfg.Logger.WithFields(logrus.Fields{"component": "Bot", "user_id": conn.UserID}),
	}
}

// RoomID は参加中のルームIDです。ルーム作成または参加の前は空です。
func (b *Bot) RoomID() string {
	return b.roomID
}

// Run はロビーでの準備から1試合の決着までを実行し、勝敗を返します。
// ctx がキャンセルされた場合は降参してから ctx.Err() を返します。
func (b *Bot) Run(ctx context.Context) (tetris.Result, error) {
	if err := b.enterRoom(ctx); err != nil {
		return tetris.Result{}, err
	}
	if err := b.readyUp(ctx); err != nil {
		return tetris.Result{}, err
	}
	return b.play(ctx)
}

// enterRoom はルームを作成して相手の参加を承認するか、既存のルームに参加リクエストを送ります。
func (b *Bot) enterRoom(ctx context.Context) error {
	hosting := b.cfg.RoomID == ""
	if hosting {
		if err := b.conn.Send(models.EventCreateRoom, models.CreateRoomRequest{Username: b.cfg.Username}); err != nil {
			return err
		}
	} else {
		b.roomID = b.cfg.RoomID
		if err := b.conn.Send(models.EventJoinRoomRequest, models.JoinRoomRequest{RoomID: b.roomID, Username: b.cfg.Username}); err != nil {
			return err
		}
	}

	for {
		env, err := b.next(ctx)
		if err != nil {
			return err
		}
		switch env.Event {
		case models.EventRoomCreated:
			var data models.RoomCreatedData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return fmt.Errorf("bad %s payload: %w", env.Event, err)
			}
			b.roomID = data.RoomID
			b.room = data.Room
			b.log.WithField("room_id", b.roomID).Info("Room created, waiting for an opponent")

		case models.EventJoinRoomRequest:
			if !hosting {
				continue
			}
			var req models.JoinRequestData
			if err := json.Unmarshal(env.Data, &req); err != nil {
				return fmt.Errorf("bad %s payload: %w", env.Event, err)
			}
			b.log.WithFields(logrus.Fields{"room_id": b.roomID, "requester": req.UserID}).Info("Accepting join request")
			if err := b.conn.Send(models.EventAcceptJoinRequest, models.JoinRoomRequest{
				RoomID: b.roomID, UserID: req.UserID, Username: req.Username,
			}); err != nil {
				return err
			}

		case models.EventPlayerJoined:
			var data models.PlayerJoinedData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return fmt.Errorf("bad %s payload: %w", env.Event, err)
			}
			if data.RoomID != b.roomID {
				continue
			}
			b.room = data.Room
			b.log.WithField("room_id", b.roomID).Info("Opponent joined")
			return nil

		case models.EventRequestDeclined:
			var data models.RequestDeclinedData
			json.Unmarshal(env.Data, &data)
			return fmt.Errorf("%w: %s", ErrJoinDeclined, data.Message)

		case models.EventError:
			return serverError(env)
		}
	}
}

// readyUp は準備完了を送り、ルームがアクティブになるのを待ちます。
func (b *Bot) readyUp(ctx context.Context) error {
	if err := b.conn.Send(models.EventToggleReady, models.RoomUserRequest{RoomID: b.roomID}); err != nil {
		return err
	}
	for {
		env, err := b.next(ctx)
		if err != nil {
			return err
		}
		switch env.Event {
		case models.EventPlayerReadyChanged:
			var data models.RoomChangedData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return fmt.Errorf("bad %s payload: %w", env.Event, err)
			}
			b.room = data.Room
			if data.Room.GameState.IsActive {
				return nil
			}
		case models.EventPlayerDisconnected:
			return ErrOpponentLeft
		case models.EventError:
			return serverError(env)
		}
	}
}

func (b *Bot) opponentID() string {
	for _, p := range b.room.Players {
		if p.UserID != b.conn.UserID {
			return p.UserID
		}
	}
	return ""
}

// play は1試合を実行します。
// フレームごとにホストのセッションを進めてイベントを送り、届いたイベントを Versus に渡します。
func (b *Bot) play(ctx context.Context) (tetris.Result, error) {
	vs := tetris.NewVersus(b.conn.UserID, b.opponentID(), b.cfg.Seed)
	log := b.log.WithField("room_id", b.roomID)
	log.WithField("opponent_id", b.opponentID()).Info("Match started")

	if err := b.sendAll(vs, vs.Host.Start()); err != nil {
		return tetris.Result{}, err
	}

	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := b.sendAll(vs, vs.Host.Surrender()); err != nil {
				log.WithError(err).Warn("Failed to send surrender")
			}
			return tetris.Result{}, ctx.Err()

		case <-ticker.C:
			events := vs.Host.Tick(tetris.TimeStep)
			if b.rng.Float64() < b.cfg.InputChance {
				events = append(events, vs.Host.HandleInput(botKeys[b.rng.Intn(len(botKeys))])...)
			}
			if err := b.sendAll(vs, events); err != nil {
				return tetris.Result{}, err
			}

		case env, ok := <-b.conn.Inbox():
			if !ok {
				return tetris.Result{}, fmt.Errorf("%w: %v", ErrDisconnected, b.conn.Err())
			}
			if res, done := b.handleMatchEvent(vs, env, log); done {
				log.WithFields(logrus.Fields{"winner_id": res.WinnerID, "loser_id": res.LoserID}).Info("Match finished")
				return res, nil
			}
		}
	}
}

// handleMatchEvent は試合中に届いたイベントを1つ処理します。決着がつくと done が true になります。
func (b *Bot) handleMatchEvent(vs *tetris.Versus, env models.Envelope, log *logrus.Entry) (res tetris.Result, done bool) {
	switch env.Event {
	case models.EventOpponentAction, models.EventGamePause, models.EventGameOver:
	default:
		return res, false
	}

	var data models.GameActionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		log.WithError(err).WithField("event", env.Event).Warn("Dropping malformed payload")
		return res, false
	}
	ev, err := tetris.DecodeEvent(data.Action)
	if err != nil {
		log.WithError(err).WithField("event", env.Event).Warn("Dropping undecodable action")
		return res, false
	}

	switch e := ev.(type) {
	case tetris.GameOverEvent:
		return vs.HandleGameOver(e)
	case tetris.StatusEvent:
		vs.HandlePause(e)
	default:
		if err := vs.HandleOpponent(ev); err != nil {
			// ミラーの状態は変わっていないので、このフレームを飛ばして続ける
			log.WithError(err).WithField("type", ev.Type()).Warn("Mirror rejected event")
		}
	}
	return res, false
}

func (b *Bot) sendAll(vs *tetris.Versus, events []tetris.Event) error {
	for _, out := range vs.Outbound(events) {
		raw, err := tetris.EncodeEvent(out.Action)
		if err != nil {
			return err
		}
		if err := b.conn.Send(out.SocketEvent, models.GameActionData{RoomID: b.roomID, Action: raw}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) next(ctx context.Context) (models.Envelope, error) {
	select {
	case <-ctx.Done():
		return models.Envelope{}, ctx.Err()
	case env, ok := <-b.conn.Inbox():
		if !ok {
			return models.Envelope{}, fmt.Errorf("%w: %v", ErrDisconnected, b.conn.Err())
		}
		return env, nil
	}
}

func serverError(env models.Envelope) error {
	var data models.ErrorData
	json.Unmarshal(env.Data, &data)
	return fmt.Errorf("server error: %s", data.Message)
}
