// Package apprentice は見習いの登録、参照、更新、削除のドメインロジックを提供する。
package apprentice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/apprentice-tracker/internal/metrics"
	"github.com/hitoshi/apprentice-tracker/internal/model"
	"github.com/hitoshi/apprentice-tracker/internal/policy"
	"github.com/hitoshi/apprentice-tracker/internal/repository"
	"github.com/hitoshi/apprentice-tracker/internal/security"
	"github.com/hitoshi/apprentice-tracker/internal/storage"
)

// 入力値の上限
const (
	maxNameLength = 255
	maxTextLength = 5000
	maxAge        = 150
	minCohortYear = 1900
	maxCohortYear = 2100
)

// DocumentLister は見習いに紐づく添付ファイルのキーを列挙するインターフェース。
type DocumentLister interface {
	DocumentPathsByApprentice(ctx context.Context, apprenticeID string) ([]string, error)
}

// TxRunner はトランザクション内で関数を実行するインターフェース。
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service は見習い管理のサービス層。
type Service struct {
	repo      repository.ApprenticeRepository
	documents DocumentLister
	store     storage.DocumentStore
	tx        TxRunner
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
// documentsとstoreがnilの場合、削除時の添付ファイル掃除は行わない。
// txがnilの場合、削除はトランザクションを張らずに実行する。
func NewService(
	repo repository.ApprenticeRepository,
	documents DocumentLister,
	store storage.DocumentStore,
	tx TxRunner,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		repo:      repo,
		documents: documents,
		store:     store,
		tx:        tx,
		sanitizer: sanitizer,
		metrics:   mc,
	}
}

// Create は操作主体を作成者として見習いを登録する。
func (s *Service) Create(ctx context.Context, actor *model.User, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	a := &model.Apprentice{
		ID:         uuid.New().String(),
		Name:       in.Name,
		Email:      in.Email,
		Age:        in.Age,
		CohortYear: in.CohortYear,
		JobRole:    in.JobRole,
		Skills:     in.Skills,
		CreatorID:  actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create apprentice: %w", err)
	}

	slog.Info("apprentice created",
		slog.String("apprentice_id", a.ID),
		slog.String("creator_id", actor.ID),
	)
	return s.Get(ctx, a.ID)
}

// Get は見習いを取得する。作成者が削除済みの場合の名前は"Deleted User"になる。
func (s *Service) Get(ctx context.Context, id string) (*model.ApprenticeWithCreator, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find apprentice: %w", err)
	}
	if a == nil {
		return nil, model.NewApprenticeNotFoundError()
	}
	return a, nil
}

// List は全見習いを返す。
func (s *Service) List(ctx context.Context) ([]*model.ApprenticeWithCreator, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list apprentices: %w", err)
	}
	return list, nil
}

// Update は作成者または管理者による見習いの更新を行う。
// 可変フィールドはすべて入力値で置き換える。
func (s *Service) Update(ctx context.Context, actor *model.User, id string, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanUpdateApprentice(actor, &current.Apprentice); err != nil {
		return nil, err
	}

	in, err = s.normalize(in)
	if err != nil {
		return nil, err
	}

	updated := current.Apprentice
	updated.Name = in.Name
	updated.Email = in.Email
	updated.Age = in.Age
	updated.CohortYear = in.CohortYear
	updated.JobRole = in.JobRole
	updated.Skills = in.Skills
	updated.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewApprenticeNotFoundError()
		}
		return nil, fmt.Errorf("failed to update apprentice: %w", err)
	}

	slog.Info("apprentice updated",
		slog.String("apprentice_id", id),
		slog.String("actor_id", actor.ID),
	)
	return s.Get(ctx, id)
}

// Delete は管理者による見習いの削除を行い、削除前の内容を返す。
// 紐づくレビューはDBでCASCADE削除され、添付ファイルはその後に削除を試みる。
func (s *Service) Delete(ctx context.Context, actor *model.User, id string) (*model.ApprenticeWithCreator, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// 1. CASCADEで消えるレビューの添付ファイルの控えと削除を1トランザクションで行う
	var keys []string
	err = s.runInTx(ctx, func(ctx context.Context) error {
		if s.documents != nil {
			paths, err := s.documents.DocumentPathsByApprentice(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to list review documents: %w", err)
			}
			keys = paths
		}

		// 2. 見習いを削除
		if err := s.repo.DeleteByID(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.NewApprenticeNotFoundError()
			}
			return fmt.Errorf("failed to delete apprentice: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 3. 添付ファイルを削除（失敗しても削除結果は変えない）
	for _, key := range keys {
		s.removeDocument(ctx, key)
	}

	slog.Info("apprentice deleted",
		slog.String("apprentice_id", id),
		slog.Int("documents", len(keys)),
	)
	return current, nil
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

func (s *Service) removeDocument(ctx context.Context, key string) {
	if s.store == nil {
		return
	}
	err := s.store.Delete(ctx, key)
	if err == nil || errors.Is(err, storage.ErrNotExist) {
		return
	}
	s.metrics.RecordDocumentRemovalFailure()
	slog.Warn("failed to remove review document",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

// normalize は入力を検証し、前後の空白を取り除く。
func (s *Service) normalize(in model.ApprenticeInput) (model.ApprenticeInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.JobRole = strings.TrimSpace(in.JobRole)
	if s.sanitizer != nil {
		in.Skills = s.sanitizer.Sanitize(in.Skills)
	}

	if err := Validate(in); err != nil {
		return model.ApprenticeInput{}, err
	}
	return in, nil
}

// Validate は見習いの入力値を検証する。
func Validate(in model.ApprenticeInput) error {
	if in.Name == "" {
		return model.NewValidationError("name", "must not be empty")
	}
	if utf8.RuneCountInString(in.Name) > maxNameLength {
		return model.NewValidationError("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}

	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return model.NewValidationError("email", "must be a valid email address")
	}

	if in.Age < 0 || in.Age > maxAge {
		return model.NewValidationError("age", fmt.Sprintf("must be between 0 and %d", maxAge))
	}
	if in.CohortYear < minCohortYear || in.CohortYear > maxCohortYear {
		return model.NewValidationError("cohort_year", fmt.Sprintf("must be between %d and %d", minCohortYear, maxCohortYear))
	}
	if utf8.RuneCountInString(in.JobRole) > maxNameLength {
		return model.NewValidationError("job_role", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if utf8.RuneCountInString(in.Skills) > maxTextLength {
		return model.NewValidationError("skills", fmt.Sprintf("must be at most %d characters", maxTextLength))
	}
	return nil
}
