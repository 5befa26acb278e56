// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は利用者が入力する自由記述テキスト（スキル、レビュー本文）を
// 保存可能な形に整える。記号やタグ風の文字列は書き換えず、そのまま保存する。
// 出力時のエスケープはJSONエンコーダーとhtml/templateが担う。
package security

import (
	"strings"
)

// TextSanitizer は自由記述テキストのサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Sanitize はPostgreSQLのtext型に保存できない文字を取り除き、前後の空白を除去する。
	// 出力に再適用しても変化しない。
	Sanitize(raw string) string
}

type textSanitizer struct{}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return textSanitizer{}
}

// Sanitize は不正なUTF-8をU+FFFDに置き換え、NULを除去してからTrimSpaceする。
func (textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.ToValidUTF8(raw, "�")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}
