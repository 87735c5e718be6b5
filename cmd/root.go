package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"slack-code-review/pkg/logger"
	"slack-code-review/services"
)

// コマンド間で共有する設定
var (
	cfg     *services.Config
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "slack-code-review",
	Short: "Code review queue bot for Slack",
	Long: `slack-code-review keeps a queue of pull requests waiting for review in each Slack channel.
PRs are added by pasting a GitHub link, claimed with "on it", and approved or closed
from GitHub webhooks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		c, err := services.LoadConfig(files...)
		if err != nil {
			return err
		}
		if _, err := logger.New(c.LogLevel); err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// Execute は main.go から呼ばれる
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", ".env file to load (default .env)")
}

// openDB はsqliteを開いてキューとスコアのテーブルを用意する
func openDB() (*gorm.DB, *services.GormStore, *services.Karma, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database %s: %w", cfg.DBPath, err)
	}

	store, err := services.NewGormStore(db)
	if err != nil {
		return nil, nil, nil, err
	}
	karma, err := services.NewKarma(db)
	if err != nil {
		return nil, nil, nil, err
	}
	return db, store, karma, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
