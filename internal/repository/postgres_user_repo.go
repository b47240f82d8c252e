package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/questmap/internal/model"
)

const userColumns = `id, facebook_id, first_name, last_name, email, picture_url, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindOrCreate はFacebookIDでユーザーを検索し、存在しなければ作成する。
// facebook_idのUNIQUE制約とON CONFLICTにより、同時ログインでも重複作成されない。
// 既存ユーザーのプロフィールは上書きしない。
func (r *PostgresUserRepo) FindOrCreate(ctx context.Context, info *model.UserInfo) (*model.User, error) {
	now := time.Now()

	// 1. 未登録の場合のみINSERT（競合時は何もしない）
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, facebook_id, first_name, last_name, email, picture_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (facebook_id) DO NOTHING`,
		uuid.New().String(), info.FacebookID, info.FirstName, info.LastName,
		info.Email, info.PictureURL, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	// 2. 作成済み・既存いずれの場合もfacebook_idで取得し直す
	user, err := r.FindByFacebookID(ctx, info.FacebookID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user disappeared after upsert: %s", info.FacebookID)
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	// users.idはUUID型のため、不正な形式はDBに問い合わせるまでもなく未検出とする
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindByFacebookID はFacebookIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByFacebookID(ctx context.Context, facebookID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE facebook_id = $1`,
		facebookID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by facebook ID: %w", err)
	}

	return user, nil
}

// ListAll は全ユーザーを作成日時の昇順で返す。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.FacebookID, &user.FirstName, &user.LastName,
		&user.Email, &user.PictureURL, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
