package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// リポジトリ層のセンチネルエラー
var (
	// ErrNotFound は更新・削除対象の行が存在しない場合に返す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate は一意制約違反（23505）を表す。
	ErrDuplicate = errors.New("duplicate key")
	// ErrForeignKey は外部キー制約違反（23503）を表す。
	ErrForeignKey = errors.New("foreign key violation")
)

// psql はPostgreSQLのプレースホルダ（$1, $2, ...）を使うクエリビルダ。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// mapError はlib/pqのエラーをリポジトリのセンチネルエラーに変換する。
// コンテキストのキャンセルとタイムアウトはそのまま返す。
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", op, ErrDuplicate)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w", op, ErrForeignKey)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// isValidID はUUID形式のIDかどうかを返す。
// 形式不正のIDはPostgreSQLに渡すと22P02エラーになるため、事前に弾いて「見つからない」扱いにする。
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// checkAffected はUPDATE/DELETEの影響行数が0の場合にErrNotFoundを返す。
func checkAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// nullableID は空文字をNULLとして扱うためのヘルパー。
func nullableID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

// nullStringPtr はNULLをnilに変換する。
func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
