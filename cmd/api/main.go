// tetris-versus は2人対戦テトリスのリレーサーバーとヘッドレスボットです。
//
// Usage:
//
//	tetris-versus serve   - WebSocketリレーサーバーを起動する
//	tetris-versus bot     - ルームを作成（または参加）して自動で対戦するボットを起動する
//
// Global flags:
//
//	--config <path>  - YAML設定ファイル（省略時は CONFIG_PATH）
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/config"
)

var flagConfigPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tetris-versus",
	Short: "Two-player Tetris relay server and bot",
	Long: `tetris-versus relays host-authoritative Tetris events between two players.

Available commands:
  serve  - Start the websocket relay server
  bot    - Play a match headlessly against a room

Examples:
  tetris-versus serve
  tetris-versus serve --config ./config.yaml
  tetris-versus bot --url ws://localhost:8080/ws --token BYPASS_AUTH`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to YAML config file (default: $CONFIG_PATH)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(botCmd)
}

// loadConfig は .env と設定ファイルを読み込み、設定に合わせたロガーを作ります。
func loadConfig() (config.Config, *logrus.Logger, error) {
	config.LoadDotEnv()
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, cfg.NewLogger(), nil
}
