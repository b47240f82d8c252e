// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/questmap/internal/model"
	"github.com/hitoshi/questmap/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	FirstName      string
	LastName       string
	Email          string
	PictureURL     string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// TextSanitizer はプロフィール文字列を平文に正規化する。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// URLValidator は外部から受け取ったURLの安全性を検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge    time.Duration // セッション有効期間
	DirectoryTimeout time.Duration // ユーザーディレクトリ問い合わせのタイムアウト（0で無制限）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth        OAuthProvider
	userRepo     repository.UserRepository
	sessionRepo  repository.SessionRepository
	sanitizer    TextSanitizer
	urlValidator URLValidator
	validate     *validator.Validate
	config       ServiceConfig
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer TextSanitizer,
	urlValidator URLValidator,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:        oauth,
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		sanitizer:    sanitizer,
		urlValidator: urlValidator,
		validate:     validator.New(),
		config:       config,
		now:          time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 初めて見るFacebook IDの場合はディレクトリにユーザーを作成し、既存の場合はそのまま使う。
// 返すエラーは ErrProviderExchange / ErrMalformedProfile / ErrDirectoryUnavailable /
// ErrSessionUnavailable のいずれかをラップする。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	// 1. 認可コードをトークンに交換し、プロフィールを取得
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrMalformedProfile) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderExchange, err)
	}

	// 2. プロフィールを正規化
	userInfo, err := s.normalize(info)
	if err != nil {
		return nil, err
	}

	// 3. ディレクトリで検索または作成
	user, err := s.findOrCreate(ctx, userInfo)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("facebook_id", user.FacebookID),
	)

	// 4. セッションを発行
	return s.Serialize(ctx, user)
}

// Serialize はユーザーのFacebook IDのみを保持するセッションを作成する。
func (s *Service) Serialize(ctx context.Context, user *model.User) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:         sessionID,
		FacebookID: user.FacebookID,
		ExpiresAt:  now.Add(s.config.SessionMaxAge),
		CreatedAt:  now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: failed to save session: %v", ErrSessionUnavailable, err)
	}

	return session, nil
}

// Deserialize はFacebook IDからディレクトリのユーザーを再取得する。
// 見つからない場合は ErrPrincipalNotFound、問い合わせ失敗時は ErrDirectoryUnavailable を返す。
func (s *Service) Deserialize(ctx context.Context, facebookID string) (*model.User, error) {
	ctx, cancel := s.directoryContext(ctx)
	defer cancel()

	user, err := s.userRepo.FindByFacebookID(ctx, facebookID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if user == nil {
		return nil, ErrPrincipalNotFound
	}

	return user, nil
}

// ResolveSession はセッションIDからログインユーザーを解決する。
// セッションが無い・期限切れの場合は ErrSessionNotFound、
// ユーザーがディレクトリから消えている場合はセッションを削除して ErrPrincipalNotFound を返す。
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	user, err := s.Deserialize(ctx, session.FacebookID)
	if errors.Is(err, ErrPrincipalNotFound) {
		if delErr := s.sessionRepo.DeleteByID(ctx, sessionID); delErr != nil {
			slog.Warn("failed to delete orphaned session",
				slog.String("facebook_id", session.FacebookID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: failed to delete session: %v", ErrSessionUnavailable, err)
	}

	slog.Info("user logged out")
	return nil
}

// normalize はプロバイダのプロフィールをディレクトリ登録用に正規化する。
// 名前からHTMLを除去し、メールアドレスと画像URLを検証する。
func (s *Service) normalize(info *OAuthUserInfo) (*model.UserInfo, error) {
	facebookID := strings.TrimSpace(info.ProviderUserID)
	if facebookID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedProfile)
	}

	email := strings.TrimSpace(info.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: invalid email: %v", ErrMalformedProfile, err)
	}

	pictureURL := strings.TrimSpace(info.PictureURL)
	if err := s.urlValidator.ValidateURL(pictureURL); err != nil {
		return nil, fmt.Errorf("%w: invalid picture url: %v", ErrMalformedProfile, err)
	}

	return &model.UserInfo{
		FacebookID: facebookID,
		FirstName:  s.sanitizer.SanitizeText(info.FirstName),
		LastName:   s.sanitizer.SanitizeText(info.LastName),
		Email:      email,
		PictureURL: pictureURL,
	}, nil
}

// findOrCreate はタイムアウト付きでディレクトリのFindOrCreateを呼び出す。
func (s *Service) findOrCreate(ctx context.Context, info *model.UserInfo) (*model.User, error) {
	ctx, cancel := s.directoryContext(ctx)
	defer cancel()

	user, err := s.userRepo.FindOrCreate(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	return user, nil
}

// directoryContext はディレクトリ問い合わせ用のタイムアウト付きコンテキストを返す。
func (s *Service) directoryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.DirectoryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.DirectoryTimeout)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
