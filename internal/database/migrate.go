// Package database はデータベース接続、マイグレーション、トランザクション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationDirection はmigrateサブコマンドの実行方向を表す。
type MigrationDirection string

const (
	MigrateUp   MigrationDirection = "up"
	MigrateDown MigrationDirection = "down"
)

// ParseMigrationDirection はmigrateサブコマンドの引数を解析する。
// 未指定の場合はupとみなす。
func ParseMigrationDirection(args []string) (MigrationDirection, error) {
	if len(args) == 0 {
		return MigrateUp, nil
	}
	switch MigrationDirection(args[0]) {
	case MigrateUp:
		return MigrateUp, nil
	case MigrateDown:
		return MigrateDown, nil
	default:
		return "", fmt.Errorf("unknown migration direction %q (want up or down)", args[0])
	}
}

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
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
	return Migrate(databaseURL, MigrateUp)
}

// Migrate は指定方向にマイグレーションを実行する。
// downは全テーブルを削除するため、運用環境では明示的に指定した場合のみ使うこと。
func Migrate(databaseURL string, direction MigrationDirection) error {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	switch direction {
	case MigrateDown:
		err = m.Down()
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations (%s): %w", direction, err)
	}

	return nil
}
