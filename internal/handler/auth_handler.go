package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/questmap/internal/auth"
	"github.com/hitoshi/questmap/internal/metrics"
	"github.com/hitoshi/questmap/internal/middleware"
	"github.com/hitoshi/questmap/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分

	// loginFailurePath は認証失敗時のリダイレクト先（SPAのログイン画面）。
	loginFailurePath = "/login"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）

	// OnLogin はコールバックの結果ごとに呼ばれる（nil可）。
	OnLogin func(outcome string)
}

// AuthHandler はFacebookログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.OnLogin == nil {
		config.OnLogin = func(string) {}
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Login はFacebook OAuthフローを開始する。
// GET /auth/facebook
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	// コールバックで照合するstate。ドメイン指定なしでAPIホストに限定する
	http.SetCookie(w, h.httpOnlyCookie(oauthStateCookie, state, "", oauthStateMaxAge))

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はFacebookからのOAuthコールバックを処理する。
// GET /auth/facebook/callback?code=xxx&state=yyy
//
// 認証そのものの失敗は/loginへリダイレクトし、ディレクトリ・セッションストアの障害は503を返す。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// stateクッキーは結果に関わらず使い捨て
	stateCookie, stateErr := r.Cookie(oauthStateCookie)
	h.clearStateCookie(w)

	// 1. ユーザーが許可を拒否した場合
	if reason := query.Get("error"); reason != "" {
		slog.Info("facebook login denied",
			slog.String("error", reason),
			slog.String("error_reason", query.Get("error_reason")),
		)
		h.failLogin(w, r, metrics.LoginDenied)
		return
	}

	// 2. stateの検証（CSRF対策）
	state := query.Get("state")
	if stateErr != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		h.failLogin(w, r, metrics.LoginStateMismatch)
		return
	}

	// 3. 認可コードの取得
	code := query.Get("code")
	if code == "" {
		slog.Warn("oauth callback without authorization code")
		h.failLogin(w, r, metrics.LoginMissingCode)
		return
	}

	// 4. 認証処理（トークン交換・プロフィール取得・ディレクトリ登録・セッション発行）
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		h.handleCallbackError(w, r, err)
		return
	}

	// 5. セッションCookieを設定
	http.SetCookie(w, h.httpOnlyCookie(middleware.SessionCookieName, session.ID, h.config.CookieDomain, h.config.SessionMaxAge))

	h.config.OnLogin(metrics.LoginSuccess)

	// 6. SPAにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// handleCallbackError は認証処理のエラーを分類してレスポンスを返す。
func (h *AuthHandler) handleCallbackError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrMalformedProfile):
		slog.Warn("facebook profile rejected", slog.String("error", err.Error()))
		h.failLogin(w, r, metrics.LoginMalformedProfile)

	case errors.Is(err, auth.ErrProviderExchange):
		slog.Warn("facebook token exchange failed", slog.String("error", err.Error()))
		h.failLogin(w, r, metrics.LoginProviderError)

	case errors.Is(err, auth.ErrDirectoryUnavailable):
		slog.Error("user directory unavailable during login", slog.String("error", err.Error()))
		h.config.OnLogin(metrics.LoginDirectoryUnavailable)
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewDirectoryUnavailableError())

	case errors.Is(err, auth.ErrSessionUnavailable):
		slog.Error("session store unavailable during login", slog.String("error", err.Error()))
		h.config.OnLogin(metrics.LoginSessionUnavailable)
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewSessionUnavailableError())

	default:
		h.config.OnLogin(metrics.LoginInternalError)
		handleServiceError(w, err)
	}
}

// failLogin はログイン失敗を記録し、ログイン画面へリダイレクトする。
func (h *AuthHandler) failLogin(w http.ResponseWriter, r *http.Request, outcome string) {
	h.config.OnLogin(outcome)
	http.Redirect(w, r, loginFailurePath, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, h.httpOnlyCookie(oauthStateCookie, "", "", -1))
}

// httpOnlyCookie はJavaScriptから読めないLaxのCookieを組み立てる。maxAgeが負なら削除。
func (h *AuthHandler) httpOnlyCookie(name, value, domain string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	middleware.ClearSessionCookie(w, h.config.CookieDomain, h.config.CookieSecure)

	http.Redirect(w, r, h.config.BaseURL, http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
