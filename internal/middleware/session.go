// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/questmap/internal/auth"
	"github.com/hitoshi/questmap/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// セッション解決の結果（メトリクスのラベルとして使用する）
const (
	SessionOutcomeAnonymous     = "anonymous"
	SessionOutcomeAuthenticated = "authenticated"
	SessionOutcomeExpired       = "expired"
	SessionOutcomeOrphaned      = "orphaned"
	SessionOutcomeError         = "error"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストにログインユーザーを格納するためのキー。
var principalContextKey = contextKey("principal")

// SessionResolver はセッションIDからログインユーザーを解決するインターフェース。
// auth.Serviceが実装する。
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*model.User, error)
}

// SessionConfig はセッションミドルウェアの設定。
type SessionConfig struct {
	CookieDomain string
	CookieSecure bool

	// Observe はセッション解決の結果ごとに呼ばれる（nil可）。
	Observe func(outcome string)
}

// NewSessionMiddleware はCookieのセッションIDをログインユーザーに解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 解決が完了するまで後続のハンドラーは実行されない。
//
//   - Cookieなし: 匿名として続行（ディレクトリは参照しない）
//   - セッションなし・期限切れ: 匿名として続行し、Cookieを削除
//   - ユーザーがディレクトリに存在しない: 匿名として続行し、Cookieを削除
//   - セッションストア・ディレクトリ障害: 503を返し、ハンドラーは実行しない
func NewSessionMiddleware(resolver SessionResolver, config SessionConfig) func(next http.Handler) http.Handler {
	observe := config.Observe
	if observe == nil {
		observe = func(string) {}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				observe(SessionOutcomeAnonymous)
				next.ServeHTTP(w, r)
				return
			}

			// 2. セッションをユーザーに解決
			user, err := resolver.ResolveSession(r.Context(), cookie.Value)
			switch {
			case err == nil:
				observe(SessionOutcomeAuthenticated)
				setLogPrincipal(r.Context(), user.FacebookID)
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), user)))

			case errors.Is(err, auth.ErrSessionNotFound):
				observe(SessionOutcomeExpired)
				ClearSessionCookie(w, config.CookieDomain, config.CookieSecure)
				next.ServeHTTP(w, r)

			case errors.Is(err, auth.ErrPrincipalNotFound):
				observe(SessionOutcomeOrphaned)
				ClearSessionCookie(w, config.CookieDomain, config.CookieSecure)
				next.ServeHTTP(w, r)

			case errors.Is(err, auth.ErrDirectoryUnavailable):
				observe(SessionOutcomeError)
				slog.Error("failed to resolve session principal", slog.String("error", err.Error()))
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewDirectoryUnavailableError())

			default:
				observe(SessionOutcomeError)
				slog.Error("failed to resolve session", slog.String("error", err.Error()))
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewSessionUnavailableError())
			}
		})
	}
}

// ClearSessionCookie はセッションCookieを削除するSet-Cookieヘッダーを書き込む。
func ClearSessionCookie(w http.ResponseWriter, domain string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// PrincipalFromContext はリクエストコンテキストからログインユーザーを取得する。
// 匿名リクエストの場合はfalseを返す。
func PrincipalFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(principalContextKey).(*model.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// ContextWithPrincipal はコンテキストにログインユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, principalContextKey, user)
}
