package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slack-code-review/models"
)

// KarmaRecorder はclaimされたときにスコアを加算・取り消しする
type KarmaRecorder interface {
	RecordClaim(ctx context.Context, reviewer, submitter string) error
	RevokeClaim(ctx context.Context, reviewer, submitter string) error
}

type noopKarma struct{}

func (noopKarma) RecordClaim(context.Context, string, string) error { return nil }
func (noopKarma) RevokeClaim(context.Context, string, string) error { return nil }

// Result はキュー操作の結果。Messages はアダプタが送信する
type Result struct {
	Requests []models.ReviewRequest
	Messages []models.Message
	Created  bool
	Summary  string // webhook のレスポンス本文
}

type roomQueue struct {
	mu       sync.Mutex
	requests []models.ReviewRequest // 新しい順
}

// QueueEngine はルームごとのレビューキューを管理する
// 1つのルームへの変更はルームのロックで直列化し、保存は persistMu で直列化する
// ロックの順番は必ず ルーム -> persistMu
type QueueEngine struct {
	store    Store
	karma    KarmaRecorder
	approves func(string) bool
	now      func() time.Time

	mu    sync.RWMutex
	rooms map[string]*roomQueue

	persistMu sync.Mutex
	saved     Snapshot
}

// NewQueueEngine は保存済みのスナップショットを読み込んでエンジンを作る
func NewQueueEngine(ctx context.Context, store Store, karma KarmaRecorder) (*QueueEngine, error) {
	if karma == nil {
		karma = noopKarma{}
	}

	snapshot, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load code review queues: %w", err)
	}

	e := &QueueEngine{
		store:    store,
		karma:    karma,
		approves: LooksLikeApproval,
		now:      time.Now,
		rooms:    make(map[string]*roomQueue, len(snapshot)),
		saved:    make(Snapshot, len(snapshot)),
	}
	for room, queue := range snapshot {
		e.rooms[room] = &roomQueue{requests: append([]models.ReviewRequest(nil), queue...)}
		e.saved[room] = append([]models.ReviewRequest(nil), queue...)
	}

	zap.S().Infof("code review queues loaded: rooms=%d", len(snapshot))
	return e, nil
}

// SetApprovalPredicate はコメント承認の判定を差し替える
func (e *QueueEngine) SetApprovalPredicate(fn func(string) bool) {
	e.approves = fn
}

func (e *QueueEngine) room(name string) *roomQueue {
	e.mu.RLock()
	q, ok := e.rooms[name]
	e.mu.RUnlock()
	if ok {
		return q
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if q, ok := e.rooms[name]; ok {
		return q
	}
	q = &roomQueue{}
	e.rooms[name] = q
	return q
}

// Rooms はキューを持っているルーム名を返す
func (e *QueueEngine) Rooms() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rooms := make([]string, 0, len(e.rooms))
	for name := range e.rooms {
		rooms = append(rooms, name)
	}
	sort.Strings(rooms)
	return rooms
}

// Queue はルームのキューのコピーを新しい順で返す
func (e *QueueEngine) Queue(room string) []models.ReviewRequest {
	e.mu.RLock()
	q, ok := e.rooms[room]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.ReviewRequest(nil), q.requests...)
}

// mutate はルームをロックして fn を実行し、変更があれば保存する
// fn がエラーを返すか保存に失敗した場合はキューを元に戻す
func (e *QueueEngine) mutate(ctx context.Context, room string, fn func(q *roomQueue) (bool, error)) error {
	q := e.room(room)
	q.mu.Lock()
	defer q.mu.Unlock()

	before := append([]models.ReviewRequest(nil), q.requests...)
	changed, err := fn(q)
	if err != nil {
		q.requests = before
		return err
	}
	if !changed {
		return nil
	}

	if err := e.persist(ctx, room, q.requests); err != nil {
		q.requests = before
		zap.S().Errorf("code review queue save error (room: %s): %v", room, err)
		return err
	}
	return nil
}

func (e *QueueEngine) persist(ctx context.Context, room string, requests []models.ReviewRequest) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	prev, had := e.saved[room]
	if len(requests) == 0 {
		delete(e.saved, room)
	} else {
		e.saved[room] = append([]models.ReviewRequest(nil), requests...)
	}

	snapshot := make(Snapshot, len(e.saved))
	for name, queue := range e.saved {
		snapshot[name] = queue
	}

	if err := e.store.Save(ctx, snapshot); err != nil {
		if had {
			e.saved[room] = prev
		} else {
			delete(e.saved, room)
		}
		return newPersistenceError(err)
	}
	return nil
}

// Submit はPRをルームのキューに追加する。同じslugがあれば何もしない
func (e *QueueEngine) Submit(ctx context.Context, user models.User, url string) (Result, error) {
	slug, ok := URLToSlug(url)
	if !ok {
		return Result{}, NewError(ErrorCodeInvalidInput, fmt.Sprintf("Sorry, `%s` doesn't look like a GitHub pull request URL.", url))
	}

	var result Result
	err := e.mutate(ctx, user.Room, func(q *roomQueue) (bool, error) {
		if i := indexOfSlug(q.requests, slug); i >= 0 {
			result.Requests = []models.ReviewRequest{q.requests[i]}
			return false, nil
		}

		req := models.ReviewRequest{
			ID:          uuid.NewString(),
			Slug:        slug,
			URL:         url,
			Submitter:   user,
			Status:      models.StatusNew,
			Room:        user.Room,
			LastUpdated: e.now(),
		}
		q.requests = append([]models.ReviewRequest{req}, q.requests...)
		result.Requests = []models.ReviewRequest{req}
		result.Created = true
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}

	if result.Created {
		zap.S().Infof("code review added: room=%s, slug=%s, user=%s", user.Room, slug, user.Name)
		result.Messages = []models.Message{roomMessage(user.Room, msgAdded(slug))}
	}
	return result, nil
}

// Flush は全ルームのキューを空にする
func (e *QueueEngine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	if err := e.store.Save(ctx, Snapshot{}); err != nil {
		return newPersistenceError(err)
	}
	e.rooms = make(map[string]*roomQueue)
	e.saved = Snapshot{}
	zap.S().Info("code review queues flushed")
	return nil
}

// removeExpired は LastUpdated が cutoff より前のものを全ルームから削除する
func (e *QueueEngine) removeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for _, room := range e.Rooms() {
		removed := 0
		err := e.mutate(ctx, room, func(q *roomQueue) (bool, error) {
			kept := q.requests[:0:0]
			for _, req := range q.requests {
				if req.LastUpdated.Before(cutoff) {
					removed++
					continue
				}
				kept = append(kept, req)
			}
			q.requests = kept
			return removed > 0, nil
		})
		if err != nil {
			return total, err
		}
		if removed > 0 {
			zap.S().Infof("expired code reviews removed: room=%s, count=%d", room, removed)
		}
		total += removed
	}
	return total, nil
}

func indexOfSlug(queue []models.ReviewRequest, slug string) int {
	for i, req := range queue {
		if req.Slug == slug {
			return i
		}
	}
	return -1
}

func roomMessage(room, text string) models.Message {
	return models.Message{Channel: room, Text: text}
}

func directMessage(user models.User, text string) models.Message {
	return models.Message{Channel: user.Room, UserID: user.ID, Text: text}
}
