package models

import "time"

// QueueSnapshot はルームごとのキューをJSONで保存するKVテーブル
type QueueSnapshot struct {
	Room      string `gorm:"primaryKey"`
	Payload   string // []ReviewRequest のJSON
	UpdatedAt time.Time
}
