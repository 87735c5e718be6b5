package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"slack-code-review/models"
)

// Karma はユーザーごとのレビュー数を数える
type Karma struct {
	DB *gorm.DB
}

func NewKarma(db *gorm.DB) (*Karma, error) {
	if err := db.AutoMigrate(&models.KarmaScore{}); err != nil {
		return nil, fmt.Errorf("failed to migrate karma table: %w", err)
	}
	return &Karma{DB: db}, nil
}

// RecordClaim はレビュワーの give と提出者の take を1つ増やす
func (k *Karma) RecordClaim(ctx context.Context, reviewer, submitter string) error {
	return k.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := incr(tx, reviewer, "give", 1); err != nil {
			return err
		}
		return incr(tx, submitter, "take", 1)
	})
}

// RevokeClaim は RecordClaim を取り消す。0 より小さくはしない
func (k *Karma) RevokeClaim(ctx context.Context, reviewer, submitter string) error {
	return k.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := decr(tx, reviewer, "give"); err != nil {
			return err
		}
		return decr(tx, submitter, "take")
	})
}

func incr(tx *gorm.DB, user, column string, n int) error {
	if user == "" {
		return nil
	}
	score := models.KarmaScore{UserName: user, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if column == "give" {
		score.Give = n
	} else {
		score.Take = n
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			column:       gorm.Expr(column+" + ?", n),
			"updated_at": time.Now(),
		}),
	}).Create(&score).Error
}

func decr(tx *gorm.DB, user, column string) error {
	if user == "" {
		return nil
	}
	return tx.Model(&models.KarmaScore{}).
		Where("user_name = ? AND "+column+" > 0", user).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column + " - 1"),
			"updated_at": time.Now(),
		}).Error
}

// ScoresFor はユーザーのスコアを返す。記録がなければ 0 のスコア
func (k *Karma) ScoresFor(ctx context.Context, user string) (models.KarmaScore, error) {
	var score models.KarmaScore
	err := k.DB.WithContext(ctx).Where("user_name = ?", user).First(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.KarmaScore{UserName: user}, nil
	}
	return score, err
}

// All は全ユーザーのスコアを名前順で返す
func (k *Karma) All(ctx context.Context) ([]models.KarmaScore, error) {
	var scores []models.KarmaScore
	err := k.DB.WithContext(ctx).Order("user_name").Find(&scores).Error
	return scores, err
}

// Flush はスコアをすべて削除する
func (k *Karma) Flush(ctx context.Context) error {
	return k.DB.WithContext(ctx).Where("1 = 1").Delete(&models.KarmaScore{}).Error
}

// FormatScore は "X has received 1 reviews and given 2. Code karma: 1"
func FormatScore(score models.KarmaScore) string {
	return fmt.Sprintf("%s has received %d reviews and given %d. Code karma: %s",
		score.UserName, score.Take, score.Give, strconv.FormatFloat(score.Karma(), 'f', -1, 64))
}

// ScoresText は全ユーザーのスコアを1行ずつ
func (k *Karma) ScoresText(ctx context.Context) (string, error) {
	scores, err := k.All(ctx)
	if err != nil {
		return "", err
	}
	if len(scores) == 0 {
		return "Nobody has any code review scores yet.", nil
	}
	lines := make([]string, len(scores))
	for i, s := range scores {
		lines[i] = FormatScore(s)
	}
	return strings.Join(lines, "\n"), nil
}

// Leaderboard は一番レビューした人、一番レビューを頼んだ人、一番スコアが高い人
func (k *Karma) Leaderboard(ctx context.Context) (string, error) {
	scores, err := k.All(ctx)
	if err != nil {
		return "", err
	}
	if len(scores) == 0 {
		return "Nobody has any code review scores yet.", nil
	}

	// 同点なら名前順で先の人
	mostGive, mostTake, best := scores[0], scores[0], scores[0]
	for _, s := range scores[1:] {
		if s.Give > mostGive.Give {
			mostGive = s
		}
		if s.Take > mostTake.Take {
			mostTake = s
		}
		if s.Karma() > best.Karma() {
			best = s
		}
	}

	return strings.Join([]string{
		fmt.Sprintf("%s has done the most reviews with %d", mostGive.UserName, mostGive.Give),
		fmt.Sprintf("%s has asked for the most code reviews with %d", mostTake.UserName, mostTake.Take),
		fmt.Sprintf("%s has the best code karma score with %s", best.UserName, strconv.FormatFloat(best.Karma(), 'f', -1, 64)),
	}, "\n"), nil
}
