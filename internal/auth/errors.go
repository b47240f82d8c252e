package auth

import "errors"

var (
	// ErrProviderExchange は認可コードの交換またはプロフィール取得に失敗したことを表す。
	ErrProviderExchange = errors.New("provider exchange failed")

	// ErrMalformedProfile はプロバイダのプロフィールに必須項目（ID・メール・画像URL）が欠けていることを表す。
	ErrMalformedProfile = errors.New("malformed provider profile")

	// ErrSessionNotFound はセッションが存在しないか期限切れであることを表す。
	ErrSessionNotFound = errors.New("session not found or expired")

	// ErrPrincipalNotFound はセッションが参照するユーザーがディレクトリに存在しないことを表す。
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrDirectoryUnavailable はユーザーディレクトリへの問い合わせが失敗またはタイムアウトしたことを表す。
	ErrDirectoryUnavailable = errors.New("user directory unavailable")

	// ErrSessionUnavailable はセッションストアへの問い合わせが失敗したことを表す。
	ErrSessionUnavailable = errors.New("session store unavailable")
)
