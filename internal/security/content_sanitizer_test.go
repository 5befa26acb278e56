package security

import (
	"testing"
)

// TestSanitize_PreservesText は自由記述の記号やタグ風の文字列が書き換えられないことを検証する。
func TestSanitize_PreservesText(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "Go, SQL, Docker",
			want:  "Go, SQL, Docker",
		},
		{
			name:  "不等号を含む文",
			input: "x<y and y>z",
			want:  "x<y and y>z",
		},
		{
			name:  "型パラメータ表記",
			input: "List<T> generics",
			want:  "List<T> generics",
		},
		{
			name:  "実体参照は展開しない",
			input: "use &lt;T&gt; generics",
			want:  "use &lt;T&gt; generics",
		},
		{
			name:  "タグも文字列として保存する",
			input: `良好<script>alert("xss")</script>`,
			want:  `良好<script>alert("xss")</script>`,
		},
		{
			name:  "アンパサンド",
			input: "R&D < 3 months",
			want:  "R&D < 3 months",
		},
		{
			name:  "前後の空白は除去される",
			input: "  要改善\n",
			want:  "要改善",
		},
		{
			name:  "NULは除去される",
			input: "Go\x00Rust",
			want:  "GoRust",
		},
		{
			name:  "不正なUTF-8は置換文字になる",
			input: "Go\xffRust",
			want:  "Go�Rust",
		},
		{
			name:  "空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は出力に再適用しても変化しないことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	inputs := []string{
		"use &lt;T&gt; generics",
		`<div onclick="x()">Go <b>&amp;</b> Rust</div>`,
		"&amp;lt;b&amp;gt; &#60;i&#62;",
		" \x00 x<y &quot;quoted&quot; \xfe ",
	}

	for _, input := range inputs {
		first := sanitizer.Sanitize(input)
		if again := sanitizer.Sanitize(first); again != first {
			t.Errorf("Sanitize(Sanitize(%q)) = %q, want %q", input, again, first)
		}
	}
}
