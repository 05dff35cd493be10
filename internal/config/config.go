package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config はサーバーとボットの設定です。
// 既定値 → YAML ファイル → 環境変数 の順に上書きされます。
type Config struct {
	Port               string        `yaml:"port"`
	CORSOrigins        []string      `yaml:"cors_origins"`
	JoinRequestTimeout time.Duration `yaml:"join_request_timeout"`
	JWTSecret          string        `yaml:"jwt_secret"`
	BypassAuth         bool          `yaml:"bypass_auth"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"` // "text" または "json"
}

// Default は既定の設定を返します。
func Default() Config {
	return Config{
		Port:               "8080",
		CORSOrigins:        []string{"http://localhost:3000"},
		JoinRequestTimeout: 30 * time.Second,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// LoadDotEnv は本番環境以外で .env を読み込みます。ファイルがなくてもエラーにはしません。
func LoadDotEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("No .env file loaded (this is fine in production): %v", err)
	}
}

// Load は設定を読み込みます。
//
// Parameters:
//
//	path : YAML ファイルのパス。空なら CONFIG_PATH を使い、それも空ならファイルは読まない
//
// Returns:
//
//	Config: 読み込んだ設定
//	error : ファイルの読み込み・パースや環境変数の値が不正な場合
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		cfg.Port = v
	}
	if v, ok := os.LookupEnv("CORS_ORIGIN"); ok && v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv("JOIN_REQUEST_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid JOIN_REQUEST_TIMEOUT %q: %w", v, err)
		}
		cfg.JoinRequestTimeout = d
	}
	if v, ok := os.LookupEnv("JWT_SECRET"); ok && v != "" {
		cfg.JWTSecret = v
	}
	if v, ok := os.LookupEnv("BYPASS_AUTH"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid BYPASS_AUTH %q: %w", v, err)
		}
		cfg.BypassAuth = b
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok && v != "" {
		cfg.LogFormat = v
	}
	return nil
}

// Validate は設定値の整合性を確認します。
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.JoinRequestTimeout <= 0 {
		return fmt.Errorf("join request timeout must be positive, got %s", c.JoinRequestTimeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q (want text or json)", c.LogFormat)
	}
	if c.JWTSecret == "" && !c.BypassAuth {
		return fmt.Errorf("JWT_SECRET is required unless BYPASS_AUTH is enabled")
	}
	return nil
}

// Addr は listen するアドレスです。
func (c Config) Addr() string {
	return ":" + c.Port
}

// NewLogger は設定のレベルと形式で logrus のロガーを作成します。
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
