package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/questmap/internal/model"
)

// MemorySessionRepo はプロセス内メモリにセッションを保持するリポジトリ。
// プロセスの寿命と同じライフサイクルを持ち、再起動でセッションは失われる。
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemorySessionRepo は新しいMemorySessionRepoを生成する。
// sweepIntervalが正の場合、バックグラウンドで期限切れセッションを定期削除する。
func NewMemorySessionRepo(sweepInterval time.Duration) *MemorySessionRepo {
	r := &MemorySessionRepo{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	if sweepInterval > 0 {
		go r.sweepLoop(sweepInterval)
	}

	return r
}

// Stop は期限切れ削除のバックグラウンドゴルーチンを停止する。
func (r *MemorySessionRepo) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	stored := *session

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = &stored
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok || s.Expired(r.now()) {
		return nil, nil
	}

	found := *s
	return &found, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

// DeleteByFacebookID は指定プリンシパルの全セッションを削除する。
func (r *MemorySessionRepo) DeleteByFacebookID(_ context.Context, facebookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.FacebookID == facebookID {
			delete(r.sessions, id)
		}
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *MemorySessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// Len は保持しているセッション数（期限切れを含む）を返す。
// テストおよびメトリクス用。
func (r *MemorySessionRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *MemorySessionRepo) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.DeleteExpired(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)
