package models

import (
	"math"
	"time"
)

// KarmaScore はユーザーごとのレビュー数（した数 / された数）
type KarmaScore struct {
	UserName  string `gorm:"primaryKey"`
	Give      int    // レビューした数
	Take      int    // レビューしてもらった数
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Karma はレビューした数とされた数の比率。されたことがなければした数をそのまま返す
func (k KarmaScore) Karma() float64 {
	if k.Take == 0 {
		return float64(k.Give)
	}
	karma := float64(k.Give-k.Take) / float64(k.Take)
	return math.Round(karma*100) / 100
}
