package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // .env がない場所
	for _, key := range []string{"PORT", "DB_PATH", "BOT_NAME", "GARBAGE_EXPIRATION", "GARBAGE_INTERVAL", "EMOJI_APPROVE", "LOG_LEVEL", "SLACK_BOT_TOKEN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "review_queue.db", cfg.DBPath)
	assert.Equal(t, "hubot", cfg.BotName)
	assert.Equal(t, 30*24*time.Hour, cfg.GarbageExpiration)
	assert.Equal(t, 24*time.Hour, cfg.GarbageInterval)
	assert.True(t, cfg.EmojiApprove)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.SlackBotToken)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "s3cret")
	t.Setenv("ADMIN_TOKEN", "admin-tok")
	t.Setenv("GARBAGE_EXPIRATION", "48h")
	t.Setenv("EMOJI_APPROVE", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "xoxb-test", cfg.SlackBotToken)
	assert.Equal(t, "s3cret", cfg.GitHubWebhookSecret)
	assert.Equal(t, "admin-tok", cfg.AdminToken)
	assert.Equal(t, 48*time.Hour, cfg.GarbageExpiration)
	assert.False(t, cfg.EmojiApprove)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("BOT_NAME=reviewbot\nSLACK_BOT_USER_ID=UBOT\n"), 0o600))
	t.Setenv("BOT_NAME", "")
	os.Unsetenv("BOT_NAME")
	t.Setenv("SLACK_BOT_USER_ID", "")
	os.Unsetenv("SLACK_BOT_USER_ID")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "reviewbot", cfg.BotName)
	assert.Equal(t, "UBOT", cfg.SlackBotUserID)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"ポートが数字でない", "PORT", "http"},
		{"ログレベルが不正", "LOG_LEVEL", "loud"},
		{"期限が0", "GARBAGE_EXPIRATION", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
