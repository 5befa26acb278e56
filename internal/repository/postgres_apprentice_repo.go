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

// PostgresApprenticeRepo はPostgreSQLを使用した見習いリポジトリ。
type PostgresApprenticeRepo struct {
	db *sql.DB
}

// NewPostgresApprenticeRepo はPostgresApprenticeRepoを生成する。
func NewPostgresApprenticeRepo(db *sql.DB) *PostgresApprenticeRepo {
	return &PostgresApprenticeRepo{db: db}
}

// selectApprentices は作成者名をLEFT JOINで解決するSELECTを返す。
// 作成者が削除済みの場合、creator_idとusernameはNULLになる。
func selectApprentices() sq.SelectBuilder {
	return psql.Select(
		"a.id", "a.name", "a.email", "a.age", "a.cohort_year", "a.job_role", "a.skills",
		"a.creator_id", "a.created_at", "a.updated_at", "u.username",
	).
		From("apprentices a").
		LeftJoin("users u ON u.id = a.creator_id")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApprentice(s rowScanner) (*model.ApprenticeWithCreator, error) {
	var (
		a         model.ApprenticeWithCreator
		creatorID sql.NullString
		username  sql.NullString
	)
	err := s.Scan(
		&a.ID, &a.Name, &a.Email, &a.Age, &a.CohortYear, &a.JobRole, &a.Skills,
		&creatorID, &a.CreatedAt, &a.UpdatedAt, &username,
	)
	if err != nil {
		return nil, err
	}
	a.CreatorID = creatorID.String
	a.CreatorUsername = model.ResolveUsername(nullStringPtr(username))
	return &a, nil
}

// FindByID は指定IDの見習いを取得する。見つからない場合はnilを返す。
func (r *PostgresApprenticeRepo) FindByID(ctx context.Context, id string) (*model.ApprenticeWithCreator, error) {
	if !isValidID(id) {
		return nil, nil
	}

	query, args, err := selectApprentices().Where(sq.Eq{"a.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("find apprentice: build query: %w", err)
	}

	a, err := scanApprentice(database.QuerierFromCtx(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "find apprentice")
	}
	return a, nil
}

// List は全見習いを作成日時順で返す。
func (r *PostgresApprenticeRepo) List(ctx context.Context) ([]*model.ApprenticeWithCreator, error) {
	query, args, err := selectApprentices().OrderBy("a.created_at ASC", "a.id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("list apprentices: build query: %w", err)
	}

	rows, err := database.QuerierFromCtx(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list apprentices")
	}
	defer rows.Close()

	apprentices := make([]*model.ApprenticeWithCreator, 0)
	for rows.Next() {
		a, err := scanApprentice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan apprentice: %w", err)
		}
		apprentices = append(apprentices, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate apprentices: %w", err)
	}

	return apprentices, nil
}

// Exists は指定IDの見習いが存在するかを返す。
func (r *PostgresApprenticeRepo) Exists(ctx context.Context, id string) (bool, error) {
	if !isValidID(id) {
		return false, nil
	}

	var exists bool
	err := database.QuerierFromCtx(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM apprentices WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, mapError(err, "check apprentice exists")
	}
	return exists, nil
}

// Create は見習いを作成する。
func (r *PostgresApprenticeRepo) Create(ctx context.Context, a *model.Apprentice) error {
	query, args, err := psql.Insert("apprentices").
		Columns("id", "name", "email", "age", "cohort_year", "job_role", "skills", "creator_id", "created_at", "updated_at").
		Values(a.ID, a.Name, a.Email, a.Age, a.CohortYear, a.JobRole, a.Skills, nullableID(a.CreatorID), a.CreatedAt, a.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("create apprentice: build query: %w", err)
	}

	if _, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return mapError(err, "create apprentice")
	}
	return nil
}

// Update は見習いの可変フィールドをすべて置き換える。作成者は変更しない。
func (r *PostgresApprenticeRepo) Update(ctx context.Context, a *model.Apprentice) error {
	if !isValidID(a.ID) {
		return fmt.Errorf("update apprentice: %w", ErrNotFound)
	}

	query, args, err := psql.Update("apprentices").
		SetMap(map[string]any{
			"name":        a.Name,
			"email":       a.Email,
			"age":         a.Age,
			"cohort_year": a.CohortYear,
			"job_role":    a.JobRole,
			"skills":      a.Skills,
			"updated_at":  a.UpdatedAt,
		}).
		Where(sq.Eq{"id": a.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("update apprentice: build query: %w", err)
	}

	result, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, "update apprentice")
	}
	return checkAffected(result, "update apprentice")
}

// DeleteByID は指定IDの見習いを削除する。紐づくレビューはCASCADE削除される。
func (r *PostgresApprenticeRepo) DeleteByID(ctx context.Context, id string) error {
	if !isValidID(id) {
		return fmt.Errorf("delete apprentice: %w", ErrNotFound)
	}

	result, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx,
		`DELETE FROM apprentices WHERE id = $1`,
		id,
	)
	if err != nil {
		return mapError(err, "delete apprentice")
	}
	return checkAffected(result, "delete apprentice")
}

// compile-time interface check
var _ ApprenticeRepository = (*PostgresApprenticeRepo)(nil)
