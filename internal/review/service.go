// Package review はレビューの登録、参照、更新、削除と添付ファイルのライフサイクルを管理する。
//
// 添付ファイルの書き込みはDBトランザクションの外で行われるため、
// DB側の失敗時には書き込み済みファイルを削除して整合性を保つ。
package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
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

// maxContentLength はレビュー本文の最大文字数。
const maxContentLength = 10000

// ApprenticeChecker は見習いの存在確認インターフェース。
type ApprenticeChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// TxRunner はトランザクション内で関数を実行するインターフェース。
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Document はアップロードされた添付ファイル。
type Document struct {
	Name    string
	Size    int64
	Content io.Reader
}

// Service はレビュー管理のサービス層。
type Service struct {
	repo        repository.ReviewRepository
	apprentices ApprenticeChecker
	store       storage.DocumentStore
	tx          TxRunner
	sanitizer   security.TextSanitizer
	metrics     metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.ReviewRepository,
	apprentices ApprenticeChecker,
	store storage.DocumentStore,
	tx TxRunner,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		repo:        repo,
		apprentices: apprentices,
		store:       store,
		tx:          tx,
		sanitizer:   sanitizer,
		metrics:     mc,
	}
}

// Create は操作主体を執筆者としてレビューを登録する。
// 添付ファイルは先に保存し、DBへの登録に失敗した場合は削除する。
func (s *Service) Create(ctx context.Context, actor *model.User, in model.ReviewInput, doc *Document) (*model.ReviewWithAuthor, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	// 1. 添付ファイルを保存
	key, err := s.saveDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rv := &model.Review{
		ID:           uuid.New().String(),
		Content:      in.Content,
		ApprenticeID: in.ApprenticeID,
		AuthorID:     actor.ID,
		ReviewDate:   in.ReviewDate,
		DocumentPath: key,
		Completed:    in.Completed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 2. 見習いの存在確認と登録を1トランザクションで行う
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.ensureApprentice(ctx, rv.ApprenticeID); err != nil {
			return err
		}
		return s.repo.Create(ctx, rv)
	})
	if err != nil {
		// 3. 失敗時は保存済みファイルを削除
		s.discardDocument(ctx, key)
		return nil, persistError(err, "create")
	}

	slog.Info("review created",
		slog.String("review_id", rv.ID),
		slog.String("apprentice_id", rv.ApprenticeID),
		slog.String("author_id", actor.ID),
		slog.Bool("has_document", key != ""),
	)
	return s.Get(ctx, rv.ID)
}

// Get はレビューを取得する。閲覧は認証済みの全ユーザーに許可される。
func (s *Service) Get(ctx context.Context, id string) (*model.ReviewWithAuthor, error) {
	rv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find review: %w", err)
	}
	if rv == nil {
		return nil, model.NewReviewNotFoundError()
	}
	return rv, nil
}

// List は全レビューを返す。
func (s *Service) List(ctx context.Context) ([]*model.ReviewWithAuthor, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return list, nil
}

// ListByApprentice は指定見習いのレビューを返す。見習いが無い場合はNOT_FOUNDを返す。
func (s *Service) ListByApprentice(ctx context.Context, apprenticeID string) ([]*model.ReviewWithAuthor, error) {
	if err := s.ensureApprentice(ctx, apprenticeID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByApprentice(ctx, apprenticeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return list, nil
}

// Update は執筆者または管理者によるレビューの更新を行う。
// 新しい添付ファイルがある場合は保存後に差し替え、旧ファイルはDB更新成功後に削除する。
func (s *Service) Update(ctx context.Context, actor *model.User, id string, in model.ReviewInput, doc *Document) (*model.ReviewWithAuthor, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.CanUpdateReview(actor, &current.Review); err != nil {
		return nil, err
	}

	in, err = s.normalize(in)
	if err != nil {
		return nil, err
	}

	newKey, err := s.saveDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	updated := current.Review
	updated.Content = in.Content
	updated.ApprenticeID = in.ApprenticeID
	updated.ReviewDate = in.ReviewDate
	updated.Completed = in.Completed
	updated.UpdatedAt = time.Now()
	if newKey != "" {
		updated.DocumentPath = newKey
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.ensureApprentice(ctx, updated.ApprenticeID); err != nil {
			return err
		}
		return s.repo.Update(ctx, &updated)
	})
	if err != nil {
		s.discardDocument(ctx, newKey)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewReviewNotFoundError()
		}
		return nil, persistError(err, "update")
	}

	// 差し替えが確定した旧ファイルを削除
	if newKey != "" && current.DocumentPath != "" {
		s.removeDocument(ctx, current.DocumentPath)
	}

	slog.Info("review updated",
		slog.String("review_id", id),
		slog.String("actor_id", actor.ID),
		slog.Bool("document_replaced", newKey != ""),
	)
	return s.Get(ctx, id)
}

// Delete は管理者によるレビューの削除を行い、削除前の内容を返す。
// 添付ファイルは行の削除後に削除を試みる。
func (s *Service) Delete(ctx context.Context, actor *model.User, id string) (*model.ReviewWithAuthor, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewReviewNotFoundError()
		}
		return nil, fmt.Errorf("failed to delete review: %w", err)
	}

	if current.DocumentPath != "" {
		s.removeDocument(ctx, current.DocumentPath)
	}

	slog.Info("review deleted", slog.String("review_id", id))
	return current, nil
}

// OpenDocument はレビューの添付ファイルを開き、ダウンロード用のファイル名とともに返す。
// 呼び出し側はReadCloserを閉じること。
func (s *Service) OpenDocument(ctx context.Context, id string) (io.ReadCloser, string, error) {
	rv, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if rv.DocumentPath == "" {
		return nil, "", model.NewDocumentNotFoundError()
	}

	rc, err := s.store.Open(ctx, rv.DocumentPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, "", model.NewDocumentNotFoundError()
		}
		return nil, "", fmt.Errorf("failed to open review document: %w", err)
	}
	return rc, DownloadName(rv.DocumentPath), nil
}

// DownloadName は保存キーから "<unix-nanos>_" を除いた元のファイル名を返す。
func DownloadName(key string) string {
	name := strings.TrimPrefix(key, storage.KeyPrefix)
	if _, rest, ok := strings.Cut(name, "_"); ok && rest != "" {
		return rest
	}
	return name
}

func (s *Service) ensureApprentice(ctx context.Context, apprenticeID string) error {
	ok, err := s.apprentices.Exists(ctx, apprenticeID)
	if err != nil {
		return fmt.Errorf("failed to check apprentice: %w", err)
	}
	if !ok {
		return model.NewApprenticeNotFoundError()
	}
	return nil
}

// saveDocument は添付ファイルを保存してキーを返す。添付が無い場合は空文字を返す。
func (s *Service) saveDocument(ctx context.Context, doc *Document) (string, error) {
	if doc == nil || doc.Content == nil {
		return "", nil
	}

	key, err := s.store.Save(ctx, doc.Name, doc.Content)
	if err != nil {
		slog.Error("failed to store review document",
			slog.String("name", doc.Name),
			slog.String("error", err.Error()),
		)
		return "", model.NewReviewPersistFailedError("Failed to store document")
	}

	s.metrics.RecordDocumentStored(doc.Size)
	return key, nil
}

// discardDocument はDB登録に失敗したレビューの添付ファイルを削除する。
func (s *Service) discardDocument(ctx context.Context, key string) {
	if key == "" {
		return
	}
	// リクエストがキャンセルされていても削除は行う
	s.removeDocument(context.WithoutCancel(ctx), key)
}

// removeDocument は添付ファイルを削除する。存在しない場合は無視する。
func (s *Service) removeDocument(ctx context.Context, key string) {
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

// persistError はトランザクション失敗をAPIエラーに変換する。
// APIErrorはそのまま返し、DBエラーの詳細はログにのみ出力する。
func persistError(err error, op string) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, repository.ErrForeignKey) {
		return model.NewApprenticeNotFoundError()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to %s review: %w", op, err)
	}

	slog.Error("failed to persist review",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return model.NewReviewPersistFailedError(fmt.Sprintf("Failed to %s review", op))
}

// normalize は入力を検証し、本文を保存可能な形に整える。
func (s *Service) normalize(in model.ReviewInput) (model.ReviewInput, error) {
	in.ApprenticeID = strings.TrimSpace(in.ApprenticeID)
	if s.sanitizer != nil {
		in.Content = s.sanitizer.Sanitize(in.Content)
	} else {
		in.Content = strings.TrimSpace(in.Content)
	}

	if in.Content == "" {
		return in, model.NewValidationError("content", "must not be empty")
	}
	if utf8.RuneCountInString(in.Content) > maxContentLength {
		return in, model.NewValidationError("content", fmt.Sprintf("must be at most %d characters", maxContentLength))
	}
	if in.ApprenticeID == "" {
		return in, model.NewValidationError("apprentice_id", "must not be empty")
	}
	if in.ReviewDate.IsZero() {
		return in, model.NewValidationError("review_date", "must be a date in YYYY-MM-DD format")
	}
	return in, nil
}
