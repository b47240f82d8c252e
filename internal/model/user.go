// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザー（認証済みプリンシパル）を表す。
// FacebookIDはIdP側の安定したIDで、ユーザーディレクトリ内で一意となる。
type User struct {
	ID         string
	FacebookID string
	FirstName  string
	LastName   string
	Email      string
	PictureURL string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserInfo はIdPのプロフィールから正規化したユーザー情報を表す。
// ユーザーディレクトリのFindOrCreateに渡す入力となる。
type UserInfo struct {
	FacebookID string
	FirstName  string
	LastName   string
	Email      string
	PictureURL string
}

// Session はユーザーのログインセッションを表す。
// プリンシパルはFacebookIDのみを保持し、プロフィールはリクエストごとに再取得する。
type Session struct {
	ID         string
	FacebookID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Expired はセッションが指定時刻の時点で期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
