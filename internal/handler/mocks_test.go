package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/apprentice-tracker/internal/middleware"
	"github.com/hitoshi/apprentice-tracker/internal/model"
	"github.com/hitoshi/apprentice-tracker/internal/review"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, username, password string) (*model.User, error)
	loginFn    func(ctx context.Context, username, password string) (*model.Session, error)
	logoutFn   func(ctx context.Context, sessionID string) error
	resolveFn  func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, username, password)
	}
	return &model.User{ID: "new-user", Username: username}, nil
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) ResolveSession(ctx context.Context, sessionID string) (*model.User, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, sessionID)
	}
	if sessionID == "" {
		return nil, model.NewNotAuthenticatedError()
	}
	return nil, model.NewUserNotFoundError()
}

type mockUserService struct {
	createFn func(ctx context.Context, actor *model.User, in model.UserInput) (*model.User, error)
	listFn   func(ctx context.Context, actor *model.User) ([]*model.User, error)
	getFn    func(ctx context.Context, id string) (*model.User, error)
	updateFn func(ctx context.Context, actor *model.User, id string, in model.UserInput) (*model.User, error)
	deleteFn func(ctx context.Context, actor *model.User, id string) (*model.User, error)
}

func (m *mockUserService) Create(ctx context.Context, actor *model.User, in model.UserInput) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, in)
	}
	return nil, nil
}

func (m *mockUserService) List(ctx context.Context, actor *model.User) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, actor)
	}
	return nil, nil
}

func (m *mockUserService) Get(ctx context.Context, id string) (*model.User, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) Update(ctx context.Context, actor *model.User, id string, in model.UserInput) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, id, in)
	}
	return nil, nil
}

func (m *mockUserService) Delete(ctx context.Context, actor *model.User, id string) (*model.User, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil, nil
}

type mockApprenticeService struct {
	createFn func(ctx context.Context, actor *model.User, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error)
	getFn    func(ctx context.Context, id string) (*model.ApprenticeWithCreator, error)
	listFn   func(ctx context.Context) ([]*model.ApprenticeWithCreator, error)
	updateFn func(ctx context.Context, actor *model.User, id string, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error)
	deleteFn func(ctx context.Context, actor *model.User, id string) (*model.ApprenticeWithCreator, error)
}

func (m *mockApprenticeService) Create(ctx context.Context, actor *model.User, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, in)
	}
	return nil, nil
}

func (m *mockApprenticeService) Get(ctx context.Context, id string) (*model.ApprenticeWithCreator, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewApprenticeNotFoundError()
}

func (m *mockApprenticeService) List(ctx context.Context) ([]*model.ApprenticeWithCreator, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockApprenticeService) Update(ctx context.Context, actor *model.User, id string, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, id, in)
	}
	return nil, nil
}

func (m *mockApprenticeService) Delete(ctx context.Context, actor *model.User, id string) (*model.ApprenticeWithCreator, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil, nil
}

type mockReviewService struct {
	createFn           func(ctx context.Context, actor *model.User, in model.ReviewInput, doc *review.Document) (*model.ReviewWithAuthor, error)
	getFn              func(ctx context.Context, id string) (*model.ReviewWithAuthor, error)
	listFn             func(ctx context.Context) ([]*model.ReviewWithAuthor, error)
	listByApprenticeFn func(ctx context.Context, apprenticeID string) ([]*model.ReviewWithAuthor, error)
	updateFn           func(ctx context.Context, actor *model.User, id string, in model.ReviewInput, doc *review.Document) (*model.ReviewWithAuthor, error)
	deleteFn           func(ctx context.Context, actor *model.User, id string) (*model.ReviewWithAuthor, error)
	openDocumentFn     func(ctx context.Context, id string) (io.ReadCloser, string, error)
}

func (m *mockReviewService) Create(ctx context.Context, actor *model.User, in model.ReviewInput, doc *review.Document) (*model.ReviewWithAuthor, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, in, doc)
	}
	return nil, nil
}

func (m *mockReviewService) Get(ctx context.Context, id string) (*model.ReviewWithAuthor, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewReviewNotFoundError()
}

func (m *mockReviewService) List(ctx context.Context) ([]*model.ReviewWithAuthor, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockReviewService) ListByApprentice(ctx context.Context, apprenticeID string) ([]*model.ReviewWithAuthor, error) {
	if m.listByApprenticeFn != nil {
		return m.listByApprenticeFn(ctx, apprenticeID)
	}
	return nil, nil
}

func (m *mockReviewService) Update(ctx context.Context, actor *model.User, id string, in model.ReviewInput, doc *review.Document) (*model.ReviewWithAuthor, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, actor, id, in, doc)
	}
	return nil, nil
}

func (m *mockReviewService) Delete(ctx context.Context, actor *model.User, id string) (*model.ReviewWithAuthor, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil, nil
}

func (m *mockReviewService) OpenDocument(ctx context.Context, id string) (io.ReadCloser, string, error) {
	if m.openDocumentFn != nil {
		return m.openDocumentFn(ctx, id)
	}
	return nil, "", model.NewDocumentNotFoundError()
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- ヘルパー ---

var (
	testAdmin   = &model.User{ID: "admin-1", Username: "admin", IsAdmin: true}
	testRegular = &model.User{ID: "user-1", Username: "alice"}
)

// withUser はセッションミドルウェア通過後と同じコンテキストを持つリクエストを返す。
func withUser(r *http.Request, u *model.User) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), u))
}

func sampleApprentice() *model.ApprenticeWithCreator {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &model.ApprenticeWithCreator{
		Apprentice: model.Apprentice{
			ID:         "appr-1",
			Name:       "Bob",
			Email:      "bob@example.com",
			Age:        22,
			CohortYear: 2024,
			JobRole:    "developer",
			Skills:     "go, sql",
			CreatorID:  testRegular.ID,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		CreatorUsername: testRegular.Username,
	}
}

func sampleReview() *model.ReviewWithAuthor {
	return &model.ReviewWithAuthor{
		Review: model.Review{
			ID:           "rev-1",
			Content:      "good progress",
			ApprenticeID: "appr-1",
			AuthorID:     testRegular.ID,
			ReviewDate:   time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
			DocumentPath: "uploads/1700000000000000000_notes.pdf",
			Completed:    true,
		},
		AuthorUsername: testRegular.Username,
	}
}
