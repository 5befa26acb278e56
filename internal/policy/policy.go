// Package policy は操作主体とリソースの組から操作可否を判定する。
// すべて副作用を持たない関数で、拒否時はFORBIDDENエラーを返す。
package policy

import "github.com/hitoshi/apprentice-tracker/internal/model"

// 拒否時のメッセージ
const (
	msgAdminRequired    = "Unauthorised"
	msgApprenticeUpdate = "Not authorised to edit this apprentice"
	msgReviewUpdate     = "Not authorised to edit this review"
)

// RequireAdmin は管理者以外を拒否する。
func RequireAdmin(actor *model.User) error {
	if actor == nil || !actor.IsAdmin {
		return model.NewForbiddenError(msgAdminRequired)
	}
	return nil
}

// CanUpdateApprentice は管理者または作成者のみ更新を許可する。
// 作成者が削除済み（CreatorIDが空）の見習いは管理者のみ更新できる。
func CanUpdateApprentice(actor *model.User, a *model.Apprentice) error {
	if isAdminOrOwner(actor, a.CreatorID) {
		return nil
	}
	return model.NewForbiddenError(msgApprenticeUpdate)
}

// CanUpdateReview は管理者または執筆者のみ更新を許可する。
func CanUpdateReview(actor *model.User, r *model.Review) error {
	if isAdminOrOwner(actor, r.AuthorID) {
		return nil
	}
	return model.NewForbiddenError(msgReviewUpdate)
}

func isAdminOrOwner(actor *model.User, ownerID string) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin {
		return true
	}
	return ownerID != "" && actor.ID == ownerID
}
