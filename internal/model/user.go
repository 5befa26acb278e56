package model

import "time"

// DeletedUserName は参照先ユーザーが削除済みの場合に表示する名前。
const DeletedUserName = "Deleted User"

// User はサービス利用ユーザーを表す。
// PasswordHashはレスポンスに含めてはならない。
type User struct {
	ID           string
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// Cookieにはこのセッションの不透明なIDのみを格納する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ResolveUsername は参照先ユーザー名を返す。
// 参照先が削除済み（空）の場合はDeletedUserNameを返す。
func ResolveUsername(username *string) string {
	if username == nil || *username == "" {
		return DeletedUserName
	}
	return *username
}

// UserInput は管理者によるユーザー作成・更新で受け付けるフィールド。
// 更新時にPasswordが空の場合は既存のハッシュを維持する。
type UserInput struct {
	Username string
	Password string
	IsAdmin  bool
}
