package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/questmap/internal/model"
)

// MemoryUserRepo はプロセス内メモリで動作するユーザーディレクトリ。
// DBを用意しないローカル開発とテストで使用する。
type MemoryUserRepo struct {
	mu           sync.RWMutex
	byID         map[string]*model.User
	byFacebookID map[string]string // facebook_id → id
}

// NewMemoryUserRepo は空のMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:         make(map[string]*model.User),
		byFacebookID: make(map[string]string),
	}
}

// FindOrCreate はFacebookIDでユーザーを検索し、存在しなければ作成する。
func (r *MemoryUserRepo) FindOrCreate(_ context.Context, info *model.UserInfo) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byFacebookID[info.FacebookID]; ok {
		found := *r.byID[id]
		return &found, nil
	}

	now := time.Now()
	user := &model.User{
		ID:         uuid.New().String(),
		FacebookID: info.FacebookID,
		FirstName:  info.FirstName,
		LastName:   info.LastName,
		Email:      info.Email,
		PictureURL: info.PictureURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.byID[user.ID] = user
	r.byFacebookID[user.FacebookID] = user.ID

	created := *user
	return &created, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	found := *user
	return &found, nil
}

// FindByFacebookID はFacebookIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByFacebookID(_ context.Context, facebookID string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byFacebookID[facebookID]
	if !ok {
		return nil, nil
	}
	found := *r.byID[id]
	return &found, nil
}

// ListAll は全ユーザーを作成日時の昇順で返す。
func (r *MemoryUserRepo) ListAll(_ context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*model.User, 0, len(r.byID))
	for _, u := range r.byID {
		copied := *u
		users = append(users, &copied)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	return users, nil
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
