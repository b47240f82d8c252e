// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, directory, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeDirectoryUnavailable = "DIRECTORY_UNAVAILABLE"
	ErrCodeSessionUnavailable   = "SESSION_UNAVAILABLE"
	ErrCodeCSRFTokenInvalid     = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストパラメータを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "directory",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewNotFoundError は存在しないAPIルートへのリクエストに対するエラーを生成する。
func NewNotFoundError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定されたAPIは存在しません: %s", path),
		Category: "validation",
		Action:   "リクエストURLを確認してください。",
	}
}

// NewDirectoryUnavailableError はユーザーディレクトリに到達できない場合のエラーを生成する。
func NewDirectoryUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeDirectoryUnavailable,
		Message:  "ユーザーディレクトリに接続できませんでした。",
		Category: "directory",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSessionUnavailableError はセッションストアに到達できない場合のエラーを生成する。
func NewSessionUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionUnavailable,
		Message:  "セッション情報を取得できませんでした。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークン検証に失敗した場合のエラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
