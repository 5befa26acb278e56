// Package repository はデータ永続化のインターフェースとPostgreSQL実装を定義する。
package repository

import (
	"context"

	"github.com/hitoshi/apprentice-tracker/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// List は全ユーザーを作成日時順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Create はユーザーを作成する。ユーザー名が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザー名、パスワードハッシュ、管理者フラグを更新する。
	// ユーザー名が重複する場合はErrDuplicate、対象が無い場合はErrNotFoundを返す。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// セッションはCASCADE削除され、見習いとレビューの作成者参照はNULLになる。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ApprenticeRepository は見習いデータの永続化インターフェース。
// 読み取り系は作成者名をLEFT JOINで解決して返す。
type ApprenticeRepository interface {
	// FindByID は指定IDの見習いを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ApprenticeWithCreator, error)

	// List は全見習いを作成日時順で返す。
	List(ctx context.Context) ([]*model.ApprenticeWithCreator, error)

	// Exists は指定IDの見習いが存在するかを返す。
	Exists(ctx context.Context, id string) (bool, error)

	// Create は見習いを作成する。
	Create(ctx context.Context, apprentice *model.Apprentice) error

	// Update は見習いの可変フィールドをすべて置き換える。対象が無い場合はErrNotFoundを返す。
	Update(ctx context.Context, apprentice *model.Apprentice) error

	// DeleteByID は指定IDの見習いを削除する。紐づくレビューはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// ReviewRepository はレビューデータの永続化インターフェース。
// 読み取り系は作成者名をLEFT JOINで解決して返す。
type ReviewRepository interface {
	// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ReviewWithAuthor, error)

	// List は全レビューをレビュー日順で返す。
	List(ctx context.Context) ([]*model.ReviewWithAuthor, error)

	// ListByApprentice は指定見習いのレビューをレビュー日順で返す。
	ListByApprentice(ctx context.Context, apprenticeID string) ([]*model.ReviewWithAuthor, error)

	// DocumentPathsByApprentice は指定見習いのレビューに添付されたファイルのキーを返す。
	DocumentPathsByApprentice(ctx context.Context, apprenticeID string) ([]string, error)

	// Create はレビューを作成する。見習いが存在しない場合はErrForeignKeyを返す。
	Create(ctx context.Context, review *model.Review) error

	// Update はレビューを更新する。対象が無い場合はErrNotFoundを返す。
	Update(ctx context.Context, review *model.Review) error

	// DeleteByID は指定IDのレビューを削除する。
	DeleteByID(ctx context.Context, id string) error
}
