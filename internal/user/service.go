// Package user は管理者によるユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/apprentice-tracker/internal/auth"
	"github.com/hitoshi/apprentice-tracker/internal/model"
	"github.com/hitoshi/apprentice-tracker/internal/policy"
	"github.com/hitoshi/apprentice-tracker/internal/repository"
)

// TxRunner はトランザクション内で関数を実行するインターフェース。
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service はユーザー管理のサービス層。
// 単一ユーザーの参照以外はすべて管理者のみ実行できる。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	tx          TxRunner
	hasher      auth.PasswordHasher
	policy      *auth.CredentialPolicy
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tx TxRunner,
	hasher auth.PasswordHasher,
	credPolicy *auth.CredentialPolicy,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tx:          tx,
		hasher:      hasher,
		policy:      credPolicy,
	}
}

// Create はユーザーを作成する。
func (s *Service) Create(ctx context.Context, actor *model.User, in model.UserInput) (*model.User, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	in.Username = strings.TrimSpace(in.Username)
	if err := s.policy.Validate(in.Username, in.Password); err != nil {
		return nil, err
	}
	if err := s.ensureUsernameAvailable(ctx, in.Username, ""); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	u := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		PasswordHash: hash,
		IsAdmin:      in.IsAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewUsernameTakenError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを作成しました",
		slog.String("user_id", u.ID),
		slog.Bool("is_admin", u.IsAdmin),
		slog.String("actor_id", actor.ID),
	)
	return u, nil
}

// List は全ユーザーを返す。
func (s *Service) List(ctx context.Context, actor *model.User) ([]*model.User, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Get は指定IDのユーザーを返す。認証済みであれば誰でも参照できる。
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// Update はユーザー名、パスワード、管理者フラグを更新する。
// パスワードが空の場合は既存のハッシュを維持する。
// ユーザー名は他のユーザーと重複しないことを再検証する。
func (s *Service) Update(ctx context.Context, actor *model.User, id string, in model.UserInput) (*model.User, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	in.Username = strings.TrimSpace(in.Username)
	if err := s.policy.ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := s.ensureUsernameAvailable(ctx, in.Username, current.ID); err != nil {
		return nil, err
	}

	updated := *current
	updated.Username = in.Username
	updated.IsAdmin = in.IsAdmin
	updated.UpdatedAt = time.Now()

	if in.Password != "" {
		if err := s.policy.ValidatePassword(in.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		updated.PasswordHash = hash
	}

	if err := s.userRepo.Update(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewUsernameTakenError()
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	slog.Info("ユーザーを更新しました",
		slog.String("user_id", id),
		slog.Bool("password_changed", in.Password != ""),
		slog.String("actor_id", actor.ID),
	)
	return &updated, nil
}

// Delete はユーザーを削除し、削除前の内容を返す。
// セッションの削除とユーザーの削除はどちらかが失敗すれば両方ロールバックされる。
// 見習いとレビューは残り、作成者参照はNULLになる。
func (s *Service) Delete(ctx context.Context, actor *model.User, id string) (*model.User, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	slog.Info("ユーザー削除を開始します",
		slog.String("user_id", id),
		slog.String("actor_id", actor.ID),
	)

	// セッションとユーザーを1トランザクションで削除する
	// （apprentices.creator_id, reviews.author_idはSET NULL）
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.sessionRepo.DeleteByUserID(ctx, id); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
		if err := s.userRepo.DeleteByID(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.NewUserNotFoundError()
			}
			return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("ユーザー削除が完了しました", slog.String("user_id", id))
	return current, nil
}

// ensureUsernameAvailable はユーザー名がexceptID以外のユーザーに使われていないことを確認する。
func (s *Service) ensureUsernameAvailable(ctx context.Context, username, exceptID string) error {
	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil && existing.ID != exceptID {
		return model.NewUsernameTakenError()
	}
	return nil
}
