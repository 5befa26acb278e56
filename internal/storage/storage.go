// Package storage はレビュー添付ファイルの保存先を抽象化する。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// KeyPrefix は保存キーの共通プレフィックス。
const KeyPrefix = "uploads/"

// maxNameLength はキーに含める元ファイル名の最大長。
const maxNameLength = 100

// ErrNotExist は指定キーのファイルが存在しないことを示す。
var ErrNotExist = errors.New("document does not exist")

// ErrInvalidKey は保存キーの形式が不正であることを示す。
var ErrInvalidKey = errors.New("invalid document key")

// DocumentStore はアップロードファイルの保存先インターフェース。
type DocumentStore interface {
	// Save はファイルを保存し、レビューに記録するキーを返す。
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	// Open はキーに対応するファイルを開く。存在しない場合はErrNotExistを返す。
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete はキーに対応するファイルを削除する。存在しない場合はErrNotExistを返す。
	Delete(ctx context.Context, key string) error
}

// nowFunc はキー生成に使う現在時刻。テストで差し替える。
var nowFunc = time.Now

// NewKey はアップロードごとに一意なキー "uploads/<unix-nanos>_<name>" を生成する。
func NewKey(originalName string) string {
	return fmt.Sprintf("%s%d_%s", KeyPrefix, nowFunc().UnixNano(), SanitizeName(originalName))
}

// SanitizeName は元ファイル名からディレクトリ成分と使用不可文字を取り除く。
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	s := strings.TrimLeft(b.String(), ".")
	if len(s) > maxNameLength {
		s = s[len(s)-maxNameLength:]
	}
	if s == "" {
		return "document"
	}
	return s
}

// fileNameFromKey はキーからファイル名部分を取り出す。
// プレフィックスが無いキーやパス区切りを含むキーはErrInvalidKeyになる。
func fileNameFromKey(key string) (string, error) {
	name, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok || name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return name, nil
}
