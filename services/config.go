package services

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config はサービス全体の設定。.env と環境変数から読む
type Config struct {
	Port                string        `validate:"required,numeric"`
	DBPath              string        `validate:"required"`
	SlackBotToken       string        // 空なら投稿しない
	SlackSigningSecret  string        // 空なら署名を検証しない
	SlackBotUserID      string
	SlackAPIURL         string
	BotName             string        `validate:"required"`
	GitHubWebhookSecret string        // 空なら署名を検証しない
	AdminToken          string        // 空なら /admin を公開しない
	GarbageExpiration   time.Duration `validate:"gt=0"`
	GarbageInterval     time.Duration `validate:"gt=0"`
	EmojiApprove        bool
	LogLevel            string `validate:"oneof=debug info warn error"`
}

// 既定値
const (
	defaultPort              = "8080"
	defaultDBPath            = "review_queue.db"
	defaultBotName           = "hubot"
	defaultGarbageExpiration = 30 * 24 * time.Hour
	defaultGarbageInterval   = 24 * time.Hour
	defaultLogLevel          = "info"
)

var validate = validator.New()

// LoadConfig は .env（なくてもよい）を読み込んでから環境変数で設定を組み立てる
func LoadConfig(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("DB_PATH", defaultDBPath)
	v.SetDefault("BOT_NAME", defaultBotName)
	v.SetDefault("GARBAGE_EXPIRATION", defaultGarbageExpiration)
	v.SetDefault("GARBAGE_INTERVAL", defaultGarbageInterval)
	v.SetDefault("EMOJI_APPROVE", true)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	// AutomaticEnv は既定値のないキーを Get で拾わないので明示的に紐づける
	for _, key := range []string{"SLACK_BOT_TOKEN", "SLACK_SIGNING_SECRET", "SLACK_BOT_USER_ID", "SLACK_API_URL", "GITHUB_WEBHOOK_SECRET", "ADMIN_TOKEN"} {
		_ = v.BindEnv(key)
	}

	cfg := &Config{
		Port:                v.GetString("PORT"),
		DBPath:              v.GetString("DB_PATH"),
		SlackBotToken:       v.GetString("SLACK_BOT_TOKEN"),
		SlackSigningSecret:  v.GetString("SLACK_SIGNING_SECRET"),
		SlackBotUserID:      v.GetString("SLACK_BOT_USER_ID"),
		SlackAPIURL:         v.GetString("SLACK_API_URL"),
		BotName:             v.GetString("BOT_NAME"),
		GitHubWebhookSecret: v.GetString("GITHUB_WEBHOOK_SECRET"),
		AdminToken:          v.GetString("ADMIN_TOKEN"),
		GarbageExpiration:   v.GetDuration("GARBAGE_EXPIRATION"),
		GarbageInterval:     v.GetDuration("GARBAGE_INTERVAL"),
		EmojiApprove:        v.GetBool("EMOJI_APPROVE"),
		LogLevel:            v.GetString("LOG_LEVEL"),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.SlackBotToken == "" {
		zap.S().Warn("SLACK_BOT_TOKEN is not set")
	}
	return cfg, nil
}
