package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc はコレクション全件をサーバー側の順序で取得する。
// 失敗時は部分的な結果を返してはならない。
type FetchFunc[T Record] func(ctx context.Context) ([]T, error)

// DefaultFetchTimeout は共有取得1回あたりの上限時間。
const DefaultFetchTimeout = 30 * time.Second

// 取得結果の種別
const (
	RefreshApplied = "applied"
	RefreshStale   = "stale"
	RefreshError   = "error"
)

// RefreshObserver はスナップショット取得結果を記録する。
type RefreshObserver interface {
	ObserveSnapshotRefresh(collection, result string)
}

// Loader は共有スナップショットを保持し、取得と明示的な無効化を管理する。
// 取得ごとに単調増加する番号を振り、より新しい取得や変更が開始された後に
// 完了した古い取得結果は保持中のスナップショットに反映しない。
type Loader[T Record] struct {
	name     string
	fetch    FetchFunc[T]
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	observer RefreshObserver

	group singleflight.Group

	mu       sync.Mutex
	snapshot Snapshot[T]
	loaded   bool
	issued   uint64 // 最後に開始した取得・変更の番号
}

// NewLoader はLoaderの新しいインスタンスを生成する。
// ttlが0以下の場合、一度取得したスナップショットは明示的に無効化されるまで使い続ける。
func NewLoader[T Record](name string, fetch FetchFunc[T], ttl time.Duration, observer RefreshObserver) *Loader[T] {
	return &Loader[T]{
		name:     name,
		fetch:    fetch,
		ttl:      ttl,
		timeout:  DefaultFetchTimeout,
		now:      time.Now,
		observer: observer,
	}
}

// Name はコレクション名を返す。
func (l *Loader[T]) Name() string {
	return l.name
}

// Get は保持中のスナップショットを返す。
// 未取得またはTTL切れの場合は取得する。同時に呼ばれた取得は1回にまとめる。
// まとめた取得は呼び出し元のキャンセルから切り離して実行し、ctxが先に終わった
// 呼び出し元だけがctx.Err()を返す。
func (l *Loader[T]) Get(ctx context.Context) (Snapshot[T], error) {
	l.mu.Lock()
	if l.loaded && (l.ttl <= 0 || l.now().Sub(l.snapshot.FetchedAt()) < l.ttl) {
		snap := l.snapshot
		l.mu.Unlock()
		return snap, nil
	}
	l.mu.Unlock()

	ch := l.group.DoChan(l.name, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		return l.Refresh(fetchCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Snapshot[T]{}, res.Err
		}
		return res.Val.(Snapshot[T]), nil
	case <-ctx.Done():
		return Snapshot[T]{}, ctx.Err()
	}
}

// Refresh はコレクション全件を取得する。
// 取得中により新しい取得や変更が開始された場合、結果は保持中のスナップショットに反映せず
// 呼び出し元にのみ返す。
func (l *Loader[T]) Refresh(ctx context.Context) (Snapshot[T], error) {
	l.mu.Lock()
	l.issued++
	seq := l.issued
	l.mu.Unlock()

	records, err := l.fetch(ctx)
	if err != nil {
		l.observe(RefreshError)
		return Snapshot[T]{}, fmt.Errorf("refresh %s snapshot: %w", l.name, err)
	}
	snap := NewSnapshot(records, l.now())

	l.mu.Lock()
	defer l.mu.Unlock()
	if seq < l.issued {
		l.observe(RefreshStale)
		return snap, nil
	}
	l.snapshot = snap
	l.loaded = true
	l.observe(RefreshApplied)
	return snap, nil
}

// Merge は変更操作が返した掲載を保持中のスナップショットに反映する。
// 未取得の場合は何もしない。進行中の古い取得結果は破棄される。
func (l *Loader[T]) Merge(rec T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued++
	if l.loaded {
		l.snapshot = l.snapshot.With(rec)
	}
}

// Remove は削除された掲載を保持中のスナップショットから除く。
func (l *Loader[T]) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued++
	if l.loaded {
		l.snapshot = l.snapshot.Without(id)
	}
}

// Invalidate は保持中のスナップショットを破棄し、次回のGetで再取得させる。
func (l *Loader[T]) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued++
	l.loaded = false
	l.snapshot = Snapshot[T]{}
}

func (l *Loader[T]) observe(result string) {
	if l.observer != nil {
		l.observer.ObserveSnapshotRefresh(l.name, result)
	}
}
