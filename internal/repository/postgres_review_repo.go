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

// PostgresReviewRepo はPostgreSQLを使用したレビューリポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

func selectReviews() sq.SelectBuilder {
	return psql.Select(
		"r.id", "r.content", "r.apprentice_id", "r.author_id", "r.review_date",
		"r.document_path", "r.completed", "r.created_at", "r.updated_at", "u.username",
	).
		From("reviews r").
		LeftJoin("users u ON u.id = r.author_id")
}

// reviewDateParam はDATE列に渡す値を返す。
// timestamptzとして渡すとセッションのタイムゾーンで日付がずれるため、文字列で渡す。
func reviewDateParam(rv *model.Review) string {
	return rv.ReviewDate.Format(model.ReviewDateLayout)
}

func scanReview(s rowScanner) (*model.ReviewWithAuthor, error) {
	var (
		rv       model.ReviewWithAuthor
		authorID sql.NullString
		username sql.NullString
	)
	err := s.Scan(
		&rv.ID, &rv.Content, &rv.ApprenticeID, &authorID, &rv.ReviewDate,
		&rv.DocumentPath, &rv.Completed, &rv.CreatedAt, &rv.UpdatedAt, &username,
	)
	if err != nil {
		return nil, err
	}
	rv.AuthorID = authorID.String
	rv.AuthorUsername = model.ResolveUsername(nullStringPtr(username))
	return &rv, nil
}

// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
func (r *PostgresReviewRepo) FindByID(ctx context.Context, id string) (*model.ReviewWithAuthor, error) {
	if !isValidID(id) {
		return nil, nil
	}

	query, args, err := selectReviews().Where(sq.Eq{"r.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("find review: build query: %w", err)
	}

	rv, err := scanReview(database.QuerierFromCtx(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "find review")
	}
	return rv, nil
}

// List は全レビューをレビュー日順で返す。
func (r *PostgresReviewRepo) List(ctx context.Context) ([]*model.ReviewWithAuthor, error) {
	return r.list(ctx, selectReviews(), "list reviews")
}

// ListByApprentice は指定見習いのレビューをレビュー日順で返す。
func (r *PostgresReviewRepo) ListByApprentice(ctx context.Context, apprenticeID string) ([]*model.ReviewWithAuthor, error) {
	if !isValidID(apprenticeID) {
		return []*model.ReviewWithAuthor{}, nil
	}
	return r.list(ctx, selectReviews().Where(sq.Eq{"r.apprentice_id": apprenticeID}), "list reviews by apprentice")
}

func (r *PostgresReviewRepo) list(ctx context.Context, b sq.SelectBuilder, op string) ([]*model.ReviewWithAuthor, error) {
	query, args, err := b.OrderBy("r.review_date ASC", "r.created_at ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	rows, err := database.QuerierFromCtx(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, op)
	}
	defer rows.Close()

	reviews := make([]*model.ReviewWithAuthor, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}

	return reviews, nil
}

// DocumentPathsByApprentice は指定見習いのレビューに添付されたファイルのキーを返す。
// 見習いの行をFOR UPDATEでロックするため、トランザクション内で呼べば
// コミットまで他のトランザクションからその見習いへのレビュー追加は待たされる。
func (r *PostgresReviewRepo) DocumentPathsByApprentice(ctx context.Context, apprenticeID string) ([]string, error) {
	if !isValidID(apprenticeID) {
		return nil, nil
	}

	query, args, err := psql.Select("r.document_path").
		From("apprentices a").
		LeftJoin("reviews r ON r.apprentice_id = a.id AND r.document_path <> ''").
		Where(sq.Eq{"a.id": apprenticeID}).
		Suffix("FOR UPDATE OF a").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("list document paths: build query: %w", err)
	}

	rows, err := database.QuerierFromCtx(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list document paths")
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p sql.NullString
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan document path: %w", err)
		}
		// レビューのない見習いはLEFT JOINでNULLの1行になる
		if p.Valid {
			paths = append(paths, p.String)
		}
	}
	return paths, rows.Err()
}

// Create はレビューを作成する。見習いが存在しない場合はErrForeignKeyを返す。
func (r *PostgresReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	query, args, err := psql.Insert("reviews").
		Columns("id", "content", "apprentice_id", "author_id", "review_date", "document_path", "completed", "created_at", "updated_at").
		Values(rv.ID, rv.Content, rv.ApprenticeID, nullableID(rv.AuthorID), reviewDateParam(rv), rv.DocumentPath, rv.Completed, rv.CreatedAt, rv.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("create review: build query: %w", err)
	}

	if _, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return mapError(err, "create review")
	}
	return nil
}

// Update はレビューの内容、見習い、レビュー日、添付ファイル、完了フラグを更新する。
// 作成者は変更しない。
func (r *PostgresReviewRepo) Update(ctx context.Context, rv *model.Review) error {
	if !isValidID(rv.ID) {
		return fmt.Errorf("update review: %w", ErrNotFound)
	}

	query, args, err := psql.Update("reviews").
		SetMap(map[string]any{
			"content":       rv.Content,
			"apprentice_id": rv.ApprenticeID,
			"review_date":   reviewDateParam(rv),
			"document_path": rv.DocumentPath,
			"completed":     rv.Completed,
			"updated_at":    rv.UpdatedAt,
		}).
		Where(sq.Eq{"id": rv.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("update review: build query: %w", err)
	}

	result, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err, "update review")
	}
	return checkAffected(result, "update review")
}

// DeleteByID は指定IDのレビューを削除する。
func (r *PostgresReviewRepo) DeleteByID(ctx context.Context, id string) error {
	if !isValidID(id) {
		return fmt.Errorf("delete review: %w", ErrNotFound)
	}

	result, err := database.QuerierFromCtx(ctx, r.db).ExecContext(ctx,
		`DELETE FROM reviews WHERE id = $1`,
		id,
	)
	if err != nil {
		return mapError(err, "delete review")
	}
	return checkAffected(result, "delete review")
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
