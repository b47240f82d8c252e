// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/questmap/internal/model"
)

// UserRepository はユーザーディレクトリの永続化インターフェース。
type UserRepository interface {
	// FindOrCreate はFacebookIDでユーザーを検索し、存在しなければ作成する。
	// 同一FacebookIDで複数回呼び出しても同じレコードを返す（重複作成しない）。
	FindOrCreate(ctx context.Context, info *model.UserInfo) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByFacebookID はFacebookIDでユーザーを取得する。見つからない場合はnilを返す。
	FindByFacebookID(ctx context.Context, facebookID string) (*model.User, error)

	// ListAll は全ユーザーを作成日時の昇順で返す。
	ListAll(ctx context.Context) ([]*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByFacebookID は指定プリンシパルの全セッションを削除する。
	DeleteByFacebookID(ctx context.Context, facebookID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
