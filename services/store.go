package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"slack-code-review/models"
)

// Snapshot はルーム -> キュー（新しい順）の全体
type Snapshot map[string][]models.ReviewRequest

// Store はキュー全体のスナップショットを読み書きする
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

// GormStore はルームごとに1行のKVテーブルへ保存する
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.QueueSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate queue snapshot table: %w", err)
	}
	return &GormStore{DB: db}, nil
}

func (s *GormStore) Load(ctx context.Context) (Snapshot, error) {
	var rows []models.QueueSnapshot
	if err := s.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load queue snapshot: %w", err)
	}

	snapshot := make(Snapshot, len(rows))
	for _, row := range rows {
		var queue []models.ReviewRequest
		if err := json.Unmarshal([]byte(row.Payload), &queue); err != nil {
			return nil, fmt.Errorf("failed to decode queue for room %s: %w", row.Room, err)
		}
		snapshot[row.Room] = queue
	}
	return snapshot, nil
}

func (s *GormStore) Save(ctx context.Context, snapshot Snapshot) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rooms := make([]string, 0, len(snapshot))
		now := time.Now()

		for room, queue := range snapshot {
			payload, err := json.Marshal(queue)
			if err != nil {
				return fmt.Errorf("failed to encode queue for room %s: %w", room, err)
			}
			row := models.QueueSnapshot{Room: room, Payload: string(payload), UpdatedAt: now}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return err
			}
			rooms = append(rooms, room)
		}

		// スナップショットに無いルームは空になったので削除
		query := tx.Where("1 = 1")
		if len(rooms) > 0 {
			query = tx.Where("room NOT IN ?", rooms)
		}
		return query.Delete(&models.QueueSnapshot{}).Error
	})
}

// MemoryStore はテスト用のストア。Err を設定すると Save が失敗する
type MemoryStore struct {
	mu       sync.Mutex
	snapshot Snapshot
	Saves    int
	Err      error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshot: Snapshot{}}
}

func (s *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSnapshot(s.snapshot), nil
}

func (s *MemoryStore) Save(ctx context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.snapshot = cloneSnapshot(snapshot)
	s.Saves++
	return nil
}

func cloneSnapshot(snapshot Snapshot) Snapshot {
	out := make(Snapshot, len(snapshot))
	for room, queue := range snapshot {
		out[room] = append([]models.ReviewRequest(nil), queue...)
	}
	return out
}
