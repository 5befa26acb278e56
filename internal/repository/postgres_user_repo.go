package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/apprentice-tracker/internal/database"
	"github.com/hitoshi/apprentice-tracker/internal/model"
)

var userColumns = []string{"id", "username", "password_hash", "is_admin", "created_at", "updated_at"}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isValidID(id) {
		return nil, nil
	}
	return r.findOne(ctx, sq.Eq{"id": id}, "find user by ID")
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, sq.Eq{"username": username}, "find user by username")
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where sq.Eq, op string) (*model.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	user := &model.User{}
	err = database.QuerierFromCtx(ctx, r.db).QueryRowContext(ctx, query, args...).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, op)
	}

	return user, nil
}

// List は全ユーザーを作成日時順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").OrderBy("created_at ASC", "username ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("list users: build query: %w", err)
	}

	rows, err := database.QuerierFromCtx(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list users")
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// Create はユーザーを作成する。ユーザー名が重複する場合はErrDuplicateを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	query, args, err := psql.Insert("users").
		Columns(userColumns...).
		Values(user.ID, user.Username, user.PasswordHash, user.IsAdmin, user.CreatedAt, user.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("create user: build query: %w", err)
	}

	if _, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return mapError(err, "create user")
	}
	return nil
}

// Update はユーザー名、パスワードハッシュ、管理者フラグを更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	if !isValidID(user.ID) {
		return fmt.Errorf("update user: %w", ErrNotFound)
	}

	query, args, err := psql.Update("users").
		Set("username", user.Username).
		Set("password_hash", user.PasswordHash).
		Set("is_admin", user.IsAdmin).
		Set("updated_at", user.UpdatedAt).
		Where(sq.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("update user: build query: %w", err)
	}

	result, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, "update user")
	}
	return checkAffected(result, "update user")
}

// DeleteByID は指定IDのユーザーを削除する。
// セッションはCASCADE削除され、見習いとレビューの作成者参照はNULLになる。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	if !isValidID(id) {
		return fmt.Errorf("delete user: %w", ErrNotFound)
	}

	result, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return mapError(err, "delete user")
	}
	return checkAffected(result, "delete user")
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
