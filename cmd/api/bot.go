package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/client"
)

var (
	flagBotURL      string
	flagBotToken    string
	flagBotRoom     string
	flagBotName     string
	flagBotSeed     int64
	flagBotInput    float64
	flagBotDeadline time.Duration
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Play a match headlessly",
	Long: `Connect to a relay server and play one match with random inputs.

Without --room the bot creates a room and accepts the first join request.
With --room it asks to join that room.

Token handling:
  - If --token is provided, it is sent as is (use BYPASS_AUTH for local servers)
  - Otherwise a token is signed with JWT_SECRET from the config

Examples:
  tetris-versus bot --token BYPASS_AUTH
  tetris-versus bot --room room_1234 --name guest --seed 42`,
	RunE: runBot,
}

func init() {
	botCmd.Flags().StringVar(&flagBotURL, "url", "ws://localhost:8080/ws", "Relay server websocket URL")
	botCmd.Flags().StringVar(&flagBotToken, "token", "", "Auth token (default: signed with JWT_SECRET)")
	botCmd.Flags().StringVar(&flagBotRoom, "room", "", "Room ID to join (default: create a room)")
	botCmd.Flags().StringVar(&flagBotName, "name", "bot", "Display name")
	botCmd.Flags().Int64Var(&flagBotSeed, "seed", 0, "RNG seed (0 = random based on time)")
	botCmd.Flags().Float64Var(&flagBotInput, "input-chance", 0.15, "Probability of pressing a key each frame")
	botCmd.Flags().DurationVar(&flagBotDeadline, "deadline", 0, "Surrender after this long (0 = play until game over)")
}

func runBot(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	token := flagBotToken
	if token == "" {
		token, err = middleware.SignToken(cfg.JWTSecret, "bot-"+uuid.NewString(), flagBotName, time.Hour)
		if err != nil {
			return fmt.Errorf("no --token given and cannot sign one: %w", err)
		}
	}
	seed := flagBotSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flagBotDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flagBotDeadline)
		defer cancel()
	}

	conn, err := client.Dial(ctx, flagBotURL, token, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	bot := client.NewBot(conn, client.BotConfig{
		RoomID:      flagBotRoom,
		Username:    flagBotName,
		Seed:        seed,
		InputChance: flagBotInput,
		Logger:      logger,
	})
	res, err := bot.Run(ctx)
	if err != nil {
		return err
	}

	outcome := "lost"
	if res.WinnerID == conn.UserID {
		outcome = "won"
	}
	logger.WithFields(logrus.Fields{
		"room_id":   bot.RoomID(),
		"winner_id": res.WinnerID,
		"loser_id":  res.LoserID,
	}).Infof("Bot %s the match", outcome)
	return nil
}
