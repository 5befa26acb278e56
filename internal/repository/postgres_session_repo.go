package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/apprentice-tracker/internal/database"
	"github.com/hitoshi/apprentice-tracker/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// 有効期限の判定はアプリケーション側の時刻で行う。
type PostgresSessionRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db, now: time.Now}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, s *model.Session) error {
	query, args, err := psql.Insert("sessions").
		Columns("id", "user_id", "expires_at", "created_at").
		Values(s.ID, s.UserID, s.ExpiresAt, s.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("create session: build query: %w", err)
	}

	if _, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return mapError(err, "create session")
	}
	return nil
}

// FindByID は有効期限内のセッションを取得する。
// 存在しない、または期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, nil
	}

	query, args, err := psql.Select("id", "user_id", "expires_at", "created_at").
		From("sessions").
		Where(sq.Eq{"id": id}).
		Where(sq.Gt{"expires_at": r.now()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("find session: build query: %w", err)
	}

	var s model.Session
	err = database.QuerierFromCtx(ctx, r.db).QueryRowContext(ctx, query, args...).
		Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "find session")
	}
	return &s, nil
}

// DeleteByID は指定IDのセッションを削除する。存在しなくてもエラーにしない。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return r.delete(ctx, sq.Eq{"id": id}, "delete session")
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if !isValidID(userID) {
		return nil
	}
	return r.delete(ctx, sq.Eq{"user_id": userID}, "delete user sessions")
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	query, args, err := psql.Delete("sessions").
		Where(sq.LtOrEq{"expires_at": r.now()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: build query: %w", err)
	}

	result, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err, "delete expired sessions")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: rows affected: %w", err)
	}
	return n, nil
}

func (r *PostgresSessionRepo) delete(ctx context.Context, where sq.Eq, op string) error {
	query, args, err := psql.Delete("sessions").Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("%s: build query: %w", op, err)
	}
	if _, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return mapError(err, op)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
