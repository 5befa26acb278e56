package model

import "time"

// Apprentice は見習い（研修生）を表す。
// CreatorIDは作成者の削除後に空になりうる。
type Apprentice struct {
	ID         string
	Name       string
	Email      string
	Age        int
	CohortYear int
	JobRole    string
	Skills     string
	CreatorID  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ApprenticeWithCreator は見習いと作成者名を結合したモデル。
// usersテーブルとLEFT JOINして取得される。
type ApprenticeWithCreator struct {
	Apprentice
	CreatorUsername string
}

// ApprenticeInput は見習いの作成・更新で受け付ける可変フィールド。
type ApprenticeInput struct {
	Name       string
	Email      string
	Age        int
	CohortYear int
	JobRole    string
	Skills     string
}
