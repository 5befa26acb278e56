package review

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/apprentice-tracker/internal/model"
	"github.com/hitoshi/apprentice-tracker/internal/repository"
	"github.com/hitoshi/apprentice-tracker/internal/security"
	"github.com/hitoshi/apprentice-tracker/internal/storage"
)

// --- モック ---

type mockReviewRepo struct {
	mu      sync.Mutex
	reviews map[string]*model.Review

	createErr error
	updateErr error
}

func newMockReviewRepo(initial ...*model.Review) *mockReviewRepo {
	m := &mockReviewRepo{reviews: make(map[string]*model.Review)}
	for _, rv := range initial {
		m.reviews[rv.ID] = rv
	}
	return m
}

func (m *mockReviewRepo) FindByID(_ context.Context, id string) (*model.ReviewWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rv, ok := m.reviews[id]
	if !ok {
		return nil, nil
	}
	return &model.ReviewWithAuthor{Review: *rv, AuthorUsername: model.ResolveUsername(&rv.AuthorID)}, nil
}

func (m *mockReviewRepo) List(_ context.Context) ([]*model.ReviewWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ReviewWithAuthor
	for _, rv := range m.reviews {
		out = append(out, &model.ReviewWithAuthor{Review: *rv})
	}
	return out, nil
}

func (m *mockReviewRepo) ListByApprentice(_ context.Context, apprenticeID string) ([]*model.ReviewWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ReviewWithAuthor
	for _, rv := range m.reviews {
		if rv.ApprenticeID == apprenticeID {
			out = append(out, &model.ReviewWithAuthor{Review: *rv})
		}
	}
	return out, nil
}

func (m *mockReviewRepo) DocumentPathsByApprentice(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func (m *mockReviewRepo) Create(_ context.Context, rv *model.Review) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rv
	m.reviews[rv.ID] = &cp
	return nil
}

func (m *mockReviewRepo) Update(_ context.Context, rv *model.Review) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[rv.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *rv
	m.reviews[rv.ID] = &cp
	return nil
}

func (m *mockReviewRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.reviews, id)
	return nil
}

type mockApprentices struct {
	ids map[string]bool
	err error
}

func (m *mockApprentices) Exists(_ context.Context, id string) (bool, error) {
	return m.ids[id], m.err
}

// passthroughTx はトランザクションを張らずに関数を実行する。
type passthroughTx struct {
	calls int
}

func (p *passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

// memStore はメモリ上にファイルを保持するDocumentStore。
type memStore struct {
	mu        sync.Mutex
	files     map[string]string
	seq       int
	saveErr   error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string]string)}
}

func (s *memStore) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	key := storage.KeyPrefix + strings.Repeat("1", s.seq) + "_" + storage.SanitizeName(name)
	s.files[key] = string(data)
	return key, nil
}

func (s *memStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[key]
	if !ok {
		return nil, storage.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[key]; !ok {
		return storage.ErrNotExist
	}
	delete(s.files, key)
	return nil
}

type mockMetrics struct {
	stored          int
	removalFailures int
}

func (m *mockMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
func (m *mockMetrics) RecordLogin(bool)                                     {}
func (m *mockMetrics) RecordRegistration()                                  {}
func (m *mockMetrics) RecordDocumentStored(int64)                           { m.stored++ }
func (m *mockMetrics) RecordDocumentRemovalFailure()                        { m.removalFailures++ }
func (m *mockMetrics) RecordSessionsExpired(int64)                          {}

var _ repository.ReviewRepository = (*mockReviewRepo)(nil)
var _ storage.DocumentStore = (*memStore)(nil)

// --- ヘルパー ---

const apprenticeID = "a-1"

var (
	adminUser = &model.User{ID: "admin-1", Username: "admin", IsAdmin: true}
	author    = &model.User{ID: "user-1", Username: "alice"}
	stranger  = &model.User{ID: "user-2", Username: "bob"}
)

type fixture struct {
	repo    *mockReviewRepo
	store   *memStore
	tx      *passthroughTx
	metrics *mockMetrics
	svc     *Service
}

func newFixture(initial ...*model.Review) *fixture {
	f := &fixture{
		repo:    newMockReviewRepo(initial...),
		store:   newMemStore(),
		tx:      &passthroughTx{},
		metrics: &mockMetrics{},
	}
	apprentices := &mockApprentices{ids: map[string]bool{apprenticeID: true}}
	f.svc = NewService(f.repo, apprentices, f.store, f.tx, nil, f.metrics)
	return f
}

func reviewDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(model.ReviewDateLayout, s)
	require.NoError(t, err)
	return d
}

func validInput(t *testing.T) model.ReviewInput {
	return model.ReviewInput{
		Content:      "Good progress on the API module",
		ApprenticeID: apprenticeID,
		ReviewDate:   reviewDate(t, "2024-12-01"),
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, code, apiErr.Code)
}

// --- Create ---

func TestCreate_WithDocument_PersistsKeyOnRow(t *testing.T) {
	f := newFixture()

	got, err := f.svc.Create(context.Background(), author, validInput(t), &Document{
		Name:    "week1.pdf",
		Size:    5,
		Content: strings.NewReader("hello"),
	})
	require.NoError(t, err)

	assert.Equal(t, author.ID, got.AuthorID)
	assert.True(t, strings.HasSuffix(got.DocumentPath, "_week1.pdf"))
	assert.Equal(t, "hello", f.store.files[got.DocumentPath])
	assert.Equal(t, "2025-02-09", got.NextReviewDate().Format(model.ReviewDateLayout))
	assert.Equal(t, 1, f.tx.calls)
	assert.Equal(t, 1, f.metrics.stored)
}

func TestCreate_WithoutDocument(t *testing.T) {
	f := newFixture()

	got, err := f.svc.Create(context.Background(), author, validInput(t), nil)
	require.NoError(t, err)
	assert.Empty(t, got.DocumentPath)
	assert.Empty(t, f.store.files)
}

// TestCreate_DBFailure_RemovesStoredDocument はDB登録失敗時に保存済みファイルが残らないことを検証する。
func TestCreate_DBFailure_RemovesStoredDocument(t *testing.T) {
	f := newFixture()
	f.repo.createErr = errors.New("pq: could not serialize access")

	_, err := f.svc.Create(context.Background(), author, validInput(t), &Document{
		Name:    "week1.pdf",
		Content: strings.NewReader("hello"),
	})

	requireCode(t, err, model.ErrCodeReviewPersistFailed)
	assert.NotContains(t, err.Error(), "pq:", "DB error text must not reach the caller")
	assert.Empty(t, f.store.files, "stored document must be removed after rollback")
}

func TestCreate_UnknownApprentice_RemovesStoredDocument(t *testing.T) {
	f := newFixture()

	in := validInput(t)
	in.ApprenticeID = "missing"
	_, err := f.svc.Create(context.Background(), author, in, &Document{
		Name:    "week1.pdf",
		Content: strings.NewReader("hello"),
	})

	requireCode(t, err, model.ErrCodeApprenticeNotFound)
	assert.Empty(t, f.store.files)
}

func TestCreate_ForeignKeyViolation_MapsToApprenticeNotFound(t *testing.T) {
	f := newFixture()
	f.repo.createErr = repository.ErrForeignKey

	_, err := f.svc.Create(context.Background(), author, validInput(t), nil)
	requireCode(t, err, model.ErrCodeApprenticeNotFound)
}

func TestCreate_StoreFailure_DoesNotInsert(t *testing.T) {
	f := newFixture()
	f.store.saveErr = errors.New("disk full")

	_, err := f.svc.Create(context.Background(), author, validInput(t), &Document{
		Name:    "week1.pdf",
		Content: strings.NewReader("hello"),
	})

	requireCode(t, err, model.ErrCodeReviewPersistFailed)
	assert.Empty(t, f.repo.reviews)
	assert.Equal(t, 0, f.tx.calls)
}

func TestCreate_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *model.ReviewInput)
	}{
		{name: "empty content", mutate: func(in *model.ReviewInput) { in.Content = "  " }},
		{name: "missing apprentice", mutate: func(in *model.ReviewInput) { in.ApprenticeID = "" }},
		{name: "missing date", mutate: func(in *model.ReviewInput) { in.ReviewDate = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			in := validInput(t)
			tt.mutate(&in)

			_, err := f.svc.Create(context.Background(), author, in, nil)
			requireCode(t, err, model.ErrCodeValidation)
		})
	}
}

// --- Update ---

func existingReview(t *testing.T, documentPath string) *model.Review {
	return &model.Review{
		ID:           "r-1",
		Content:      "initial",
		ApprenticeID: apprenticeID,
		AuthorID:     author.ID,
		ReviewDate:   reviewDate(t, "2024-01-15"),
		DocumentPath: documentPath,
	}
}

// TestUpdate_ReplacesDocument は新しいファイルへの差し替え後に旧ファイルが削除されることを検証する。
func TestUpdate_ReplacesDocument(t *testing.T) {
	f := newFixture(existingReview(t, "uploads/1_old.pdf"))
	f.store.files["uploads/1_old.pdf"] = "old"

	in := validInput(t)
	in.Completed = true
	got, err := f.svc.Update(context.Background(), author, "r-1", in, &Document{
		Name:    "new.pdf",
		Content: strings.NewReader("new"),
	})
	require.NoError(t, err)

	assert.True(t, got.Completed)
	assert.Equal(t, "Good progress on the API module", got.Content)
	assert.NotEqual(t, "uploads/1_old.pdf", got.DocumentPath)
	assert.Equal(t, "new", f.store.files[got.DocumentPath])
	assert.NotContains(t, f.store.files, "uploads/1_old.pdf")
}

// TestUpdate_ContentRoundTripsUnchanged は取得した本文をそのまま再送しても内容が変わらないことを検証する。
func TestUpdate_ContentRoundTripsUnchanged(t *testing.T) {
	f := newFixture(existingReview(t, ""))
	f.svc.sanitizer = security.NewTextSanitizer()

	for _, content := range []string{"x<y and y>z", "List<T> generics", "use &lt;T&gt; generics"} {
		in := validInput(t)
		in.Content = content
		first, err := f.svc.Update(context.Background(), author, "r-1", in, nil)
		require.NoError(t, err)
		assert.Equal(t, content, first.Content)

		in.Content = first.Content
		second, err := f.svc.Update(context.Background(), author, "r-1", in, nil)
		require.NoError(t, err)
		assert.Equal(t, content, second.Content)
	}
}

func TestUpdate_WithoutDocument_KeepsExisting(t *testing.T) {
	f := newFixture(existingReview(t, "uploads/1_old.pdf"))
	f.store.files["uploads/1_old.pdf"] = "old"

	got, err := f.svc.Update(context.Background(), adminUser, "r-1", validInput(t), nil)
	require.NoError(t, err)

	assert.Equal(t, "uploads/1_old.pdf", got.DocumentPath)
	assert.Contains(t, f.store.files, "uploads/1_old.pdf")
}

// TestUpdate_MissingOldFile_Ignored は旧ファイルが既に無い場合もエラーにならないことを検証する。
func TestUpdate_MissingOldFile_Ignored(t *testing.T) {
	f := newFixture(existingReview(t, "uploads/1_gone.pdf"))

	_, err := f.svc.Update(context.Background(), author, "r-1", validInput(t), &Document{
		Name:    "new.pdf",
		Content: strings.NewReader("new"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.metrics.removalFailures)
}

func TestUpdate_DBFailure_RemovesNewDocumentKeepsOld(t *testing.T) {
	f := newFixture(existingReview(t, "uploads/1_old.pdf"))
	f.store.files["uploads/1_old.pdf"] = "old"
	f.repo.updateErr = errors.New("connection reset")

	_, err := f.svc.Update(context.Background(), author, "r-1", validInput(t), &Document{
		Name:    "new.pdf",
		Content: strings.NewReader("new"),
	})

	requireCode(t, err, model.ErrCodeReviewPersistFailed)
	assert.Len(t, f.store.files, 1)
	assert.Contains(t, f.store.files, "uploads/1_old.pdf")
}

func TestUpdate_Forbidden(t *testing.T) {
	f := newFixture(existingReview(t, ""))

	_, err := f.svc.Update(context.Background(), stranger, "r-1", validInput(t), &Document{
		Name:    "new.pdf",
		Content: strings.NewReader("new"),
	})

	requireCode(t, err, model.ErrCodeForbidden)
	assert.Empty(t, f.store.files, "document must not be stored when forbidden")
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Update(context.Background(), adminUser, "missing", validInput(t), nil)
	requireCode(t, err, model.ErrCodeReviewNotFound)
}

// --- Delete ---

func TestDelete_RemovesRowAndDocument(t *testing.T) {
	f := newFixture(existingReview(t, "uploads/1_old.pdf"))
	f.store.files["uploads/1_old.pdf"] = "old"

	got, err := f.svc.Delete(context.Background(), adminUser, "r-1")
	require.NoError(t, err)

	assert.Equal(t, "r-1", got.ID)
	assert.Empty(t, f.repo.reviews)
	assert.Empty(t, f.store.files)
}

func TestDelete_DocumentRemovalFailure_StillSucceeds(t *testing.T) {
	f := newFixture(existingReview(t, "uploads/1_old.pdf"))
	f.store.files["uploads/1_old.pdf"] = "old"
	f.store.deleteErr = errors.New("permission denied")

	_, err := f.svc.Delete(context.Background(), adminUser, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.metrics.removalFailures)
}

func TestDelete_NonAdminForbidden(t *testing.T) {
	f := newFixture(existingReview(t, ""))

	_, err := f.svc.Delete(context.Background(), author, "r-1")
	requireCode(t, err, model.ErrCodeForbidden)
	assert.Len(t, f.repo.reviews, 1)
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Delete(context.Background(), adminUser, "missing")
	requireCode(t, err, model.ErrCodeReviewNotFound)
}

// --- Read ---

func TestListByApprentice_UnknownApprentice(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ListByApprentice(context.Background(), "missing")
	requireCode(t, err, model.ErrCodeApprenticeNotFound)
}

func TestListByApprentice_FiltersReviews(t *testing.T) {
	other := existingReview(t, "")
	other.ID = "r-2"
	other.ApprenticeID = "a-2"
	f := newFixture(existingReview(t, ""), other)

	list, err := f.svc.ListByApprentice(context.Background(), apprenticeID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r-1", list[0].ID)
}

func TestOpenDocument(t *testing.T) {
	f := newFixture(existingReview(t, "uploads/1700000000_week1.pdf"))
	f.store.files["uploads/1700000000_week1.pdf"] = "pdf"

	rc, name, err := f.svc.OpenDocument(context.Background(), "r-1")
	require.NoError(t, err)
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	assert.Equal(t, "pdf", string(data))
	assert.Equal(t, "week1.pdf", name)
}

func TestOpenDocument_NoAttachment(t *testing.T) {
	f := newFixture(existingReview(t, ""))

	_, _, err := f.svc.OpenDocument(context.Background(), "r-1")
	requireCode(t, err, model.ErrCodeDocumentNotFound)
}

func TestOpenDocument_FileMissing(t *testing.T) {
	f := newFixture(existingReview(t, "uploads/1_gone.pdf"))

	_, _, err := f.svc.OpenDocument(context.Background(), "r-1")
	requireCode(t, err, model.ErrCodeDocumentNotFound)
}

func TestDownloadName(t *testing.T) {
	assert.Equal(t, "week1.pdf", DownloadName("uploads/1700000000123_week1.pdf"))
	assert.Equal(t, "my_file.pdf", DownloadName("uploads/1_my_file.pdf"))
	assert.Equal(t, "plain", DownloadName("plain"))
}
