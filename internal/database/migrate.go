// Package database はPostgreSQL接続とスキーママイグレーションを提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateAction はmigrateサブコマンドの操作。
type MigrateAction string

const (
	// MigrateUp は未適用のマイグレーションをすべて適用する。
	MigrateUp MigrateAction = "up"
	// MigrateDown は直近のマイグレーションを1つ取り消す。
	MigrateDown MigrateAction = "down"
	// MigrateVersion は現在のスキーマバージョンを確認するだけで変更しない。
	MigrateVersion MigrateAction = "version"
)

// MigrationStatus はマイグレーション実行後のスキーマ状態。
type MigrationStatus struct {
	Version uint // 0はマイグレーション未適用
	Dirty   bool // 前回のマイグレーションが途中で失敗している
}

// NewMigrator は埋め込みSQLをソースとするmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations はすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(databaseURL string) error {
	_, err := Migrate(databaseURL, MigrateUp)
	return err
}

// Migrate は指定された操作を実行し、実行後のスキーマ状態を返す。
// 適用・取り消し対象がない場合はエラーにしない。
func Migrate(databaseURL string, action MigrateAction) (MigrationStatus, error) {
	switch action {
	case MigrateUp, MigrateDown, MigrateVersion:
	default:
		return MigrationStatus{}, fmt.Errorf("unknown migrate action: %q", action)
	}

	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer m.Close()

	switch action {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Steps(-1)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) && !errors.Is(err, os.ErrNotExist) {
		return MigrationStatus{}, fmt.Errorf("failed to run migrations (%s): %w", action, err)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}
