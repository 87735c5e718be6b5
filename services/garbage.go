package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrSweepInProgress は別の回収が実行中のときに返る
var ErrSweepInProgress = errors.New("garbage collection already in progress")

// GarbageCollector は一定期間更新のないレビュー依頼を全ルームから削除する
// LastUpdated が Expiration よりちょうど古いもの (境界) は残し、それより古いものを削除する
type GarbageCollector struct {
	Engine     *QueueEngine
	Expiration time.Duration

	sweepMu        sync.Mutex
	lastCollection atomic.Int64
	sweeps         atomic.Int64

	stopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewGarbageCollector(engine *QueueEngine, expiration time.Duration) *GarbageCollector {
	return &GarbageCollector{
		Engine:     engine,
		Expiration: expiration,
	}
}

// Collect は1回分の回収を実行して削除件数を返す。通知は送らない
func (g *GarbageCollector) Collect(ctx context.Context) (int, error) {
	return g.CollectOlderThan(ctx, g.Expiration)
}

// CollectOlderThan は Expiration の代わりに expiration で回収する
func (g *GarbageCollector) CollectOlderThan(ctx context.Context, expiration time.Duration) (int, error) {
	if !g.sweepMu.TryLock() {
		return 0, ErrSweepInProgress
	}
	defer g.sweepMu.Unlock()

	cutoff := g.Engine.now().Add(-expiration)
	removed, err := g.Engine.removeExpired(ctx, cutoff)
	g.lastCollection.Store(int64(removed))
	g.sweeps.Add(1)
	if err != nil {
		zap.S().Errorf("garbage collection error: %v", err)
		return removed, err
	}

	if removed > 0 {
		zap.S().Infof("✅ garbage collected code reviews: %d", removed)
	}
	return removed, nil
}

// LastCollection は直近の回収で削除した件数
func (g *GarbageCollector) LastCollection() int {
	return int(g.lastCollection.Load())
}

// Sweeps はこれまでに回収した回数
func (g *GarbageCollector) Sweeps() int64 {
	return g.sweeps.Load()
}

// Start は interval ごとに Collect を実行する。ctx のキャンセルか Stop で止まる
func (g *GarbageCollector) Start(ctx context.Context, interval time.Duration) {
	g.stopMu.Lock()
	defer g.stopMu.Unlock()
	if g.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := g.Collect(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
					zap.S().Warnf("scheduled garbage collection failed: %v", err)
				}
			}
		}
	}(g.done)

	zap.S().Infof("garbage collector started: interval=%s, expiration=%s", interval, g.Expiration)
}

// Stop はスケジュールを止めて、実行中のゴルーチンの終了を待つ
func (g *GarbageCollector) Stop() {
	g.stopMu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.stopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
