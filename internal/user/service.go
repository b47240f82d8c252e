// Package user はユーザーディレクトリ参照のドメインロジックを提供する。
package user

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/questmap/internal/model"
	"github.com/hitoshi/questmap/internal/repository"
)

// Service はユーザー参照のサービス層。
// ディレクトリの失敗はすべてAPIErrorとして呼び出し側に返す。
type Service struct {
	userRepo repository.UserRepository
	timeout  time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
// timeoutはディレクトリ問い合わせ1回あたりの上限（0で無制限）。
func NewService(userRepo repository.UserRepository, timeout time.Duration) *Service {
	return &Service{
		userRepo: userRepo,
		timeout:  timeout,
	}
}

// Get は指定IDのユーザーを取得する。
// IDが空の場合はINVALID_REQUEST、存在しない場合はUSER_NOT_FOUND、
// ディレクトリ障害時はDIRECTORY_UNAVAILABLEのAPIErrorを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, model.NewInvalidRequestError("idが指定されていません")
	}

	ctx, cancel := s.directoryContext(ctx)
	defer cancel()

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		slog.Error("ユーザーの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDirectoryUnavailableError()
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	return user, nil
}

// List は全ユーザーを作成日時の昇順で返す。
// ディレクトリ障害時はDIRECTORY_UNAVAILABLEのAPIErrorを返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	ctx, cancel := s.directoryContext(ctx)
	defer cancel()

	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		slog.Error("ユーザー一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewDirectoryUnavailableError()
	}
	if users == nil {
		users = []*model.User{}
	}

	return users, nil
}

func (s *Service) directoryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
